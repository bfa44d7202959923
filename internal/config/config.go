package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Chain
	RPCURL          string
	ContractAddress string
	Confirmations   uint64
	RPCTimeout      time.Duration
	RPCMinDelay     time.Duration
	PollInterval    time.Duration
	RetryBackoff    time.Duration
	BackfillBatch   uint64

	// Pipeline
	QueueSize          int
	MigrationLock      bool
	MigrationLockTTL   time.Duration
	SubscriptionPeriod time.Duration

	// Redis
	RedisURL   string
	PaymentTTL time.Duration

	// Storage
	CheckpointBackend string // redis | sqlite
	LedgerDriver      string // sqlite | postgres
	DBPath            string
	PostgresDSN       string

	// Telegram
	BotToken    string
	ExplorerURL string

	// HTTP
	HTTPPort int

	LogLevel slog.Level
}

func Load() *Config {
	return &Config{
		// Chain
		RPCURL:          getEnv("RPC_URL", ""),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
		Confirmations:   getEnvUint("CONFIRMATIONS", 3),
		RPCTimeout:      getEnvDuration("RPC_TIMEOUT", 10*time.Second),
		RPCMinDelay:     getEnvDuration("RPC_MIN_DELAY", 0),
		PollInterval:    getEnvDuration("POLL_INTERVAL", time.Second),
		RetryBackoff:    getEnvDuration("RETRY_BACKOFF", 5*time.Second),
		BackfillBatch:   getEnvUint("BACKFILL_BATCH", 2000),

		// Pipeline
		QueueSize:          getEnvInt("QUEUE_SIZE", 1024),
		MigrationLock:      getEnvBool("MIGRATION_LOCK", false),
		MigrationLockTTL:   getEnvDuration("MIGRATION_LOCK_TTL", 30*time.Second),
		SubscriptionPeriod: getEnvDuration("SUBSCRIPTION_PERIOD", 30*24*time.Hour),

		// Redis
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PaymentTTL: getEnvDuration("PAYMENT_TTL", time.Hour),

		// Storage
		CheckpointBackend: strings.ToLower(getEnv("CHECKPOINT_BACKEND", "redis")),
		LedgerDriver:      strings.ToLower(getEnv("LEDGER_DRIVER", "sqlite")),
		DBPath:            getEnv("DB_PATH", "./chainpay.db"),
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),

		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		ExplorerURL: getEnv("EXPLORER_URL", ""),

		// HTTP
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate checks the settings the pipeline cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is required"))
	}
	if c.ContractAddress == "" {
		errs = append(errs, errors.New("CONTRACT_ADDRESS is required"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("QUEUE_SIZE must be positive"))
	}
	if c.BackfillBatch == 0 {
		errs = append(errs, errors.New("BACKFILL_BATCH must be positive"))
	}
	switch c.CheckpointBackend {
	case "redis", "sqlite":
	default:
		errs = append(errs, errors.New("CHECKPOINT_BACKEND must be redis or sqlite"))
	}
	switch c.LedgerDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for postgres ledger"))
		}
	default:
		errs = append(errs, errors.New("LEDGER_DRIVER must be sqlite or postgres"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvUint(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			return u
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
