package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"RPC_URL", "CONFIRMATIONS", "POLL_INTERVAL", "RETRY_BACKOFF", "PAYMENT_TTL", "LOG_LEVEL", "CHECKPOINT_BACKEND"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Confirmations != 3 {
		t.Errorf("Confirmations = %d, want 3", cfg.Confirmations)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.RetryBackoff != 5*time.Second {
		t.Errorf("RetryBackoff = %v, want 5s", cfg.RetryBackoff)
	}
	if cfg.PaymentTTL != time.Hour {
		t.Errorf("PaymentTTL = %v, want 1h", cfg.PaymentTTL)
	}
	if cfg.CheckpointBackend != "redis" {
		t.Errorf("CheckpointBackend = %q", cfg.CheckpointBackend)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONFIRMATIONS", "12")
	t.Setenv("RPC_TIMEOUT", "2s")
	t.Setenv("MIGRATION_LOCK", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LEDGER_DRIVER", "Postgres")
	t.Setenv("QUEUE_SIZE", "not-a-number")

	cfg := Load()

	if cfg.Confirmations != 12 {
		t.Errorf("Confirmations = %d", cfg.Confirmations)
	}
	if cfg.RPCTimeout != 2*time.Second {
		t.Errorf("RPCTimeout = %v", cfg.RPCTimeout)
	}
	if !cfg.MigrationLock {
		t.Error("MigrationLock should be enabled")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.LedgerDriver != "postgres" {
		t.Errorf("LedgerDriver = %q", cfg.LedgerDriver)
	}
	if cfg.QueueSize != 1024 {
		t.Errorf("invalid QUEUE_SIZE should fall back to default, got %d", cfg.QueueSize)
	}
}

func TestLoad_UnsignedSettings(t *testing.T) {
	t.Setenv("CONFIRMATIONS", "-1")
	t.Setenv("BACKFILL_BATCH", "-5")
	t.Setenv("RPC_MIN_DELAY", "250ms")

	cfg := Load()

	if cfg.Confirmations != 3 {
		t.Errorf("negative CONFIRMATIONS should fall back to 3, got %d", cfg.Confirmations)
	}
	if cfg.BackfillBatch != 2000 {
		t.Errorf("negative BACKFILL_BATCH should fall back to 2000, got %d", cfg.BackfillBatch)
	}
	if cfg.RPCMinDelay != 250*time.Millisecond {
		t.Errorf("RPCMinDelay = %v", cfg.RPCMinDelay)
	}

	t.Setenv("RPC_MIN_DELAY", "")
	if d := Load().RPCMinDelay; d != 0 {
		t.Errorf("RPCMinDelay default = %v, want 0", d)
	}
}

func TestValidate(t *testing.T) {
	t.Run("missing chain settings", func(t *testing.T) {
		cfg := &Config{QueueSize: 1, BackfillBatch: 1, CheckpointBackend: "redis", LedgerDriver: "sqlite"}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("postgres needs dsn", func(t *testing.T) {
		cfg := &Config{RPCURL: "http://node", ContractAddress: "0x1", QueueSize: 1, BackfillBatch: 1, CheckpointBackend: "redis", LedgerDriver: "postgres"}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
		cfg.PostgresDSN = "postgres://localhost/chainpay"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
