package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/suspectuso/chainpay/internal/chain"
	"github.com/suspectuso/chainpay/internal/health"
	"github.com/suspectuso/chainpay/internal/notifier"
	"github.com/suspectuso/chainpay/internal/reconciler"
	"github.com/suspectuso/chainpay/internal/redisstore"
)

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reconciliation pipeline and the health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) run(parent context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s := &stores{}
	defer s.Close()

	rdb, err := a.openRedis(ctx, s)
	if err != nil {
		return err
	}
	checkpoint, err := a.openCheckpoint(ctx, s)
	if err != nil {
		return err
	}
	ledger, err := a.openLedger(s)
	if err != nil {
		return err
	}

	source, err := chain.Dial(ctx, a.cfg.RPCURL, chain.Options{
		Contract:      a.cfg.ContractAddress,
		Confirmations: a.cfg.Confirmations,
		Timeout:       a.cfg.RPCTimeout,
		MinDelay:      a.cfg.RPCMinDelay,
		PollInterval:  a.cfg.PollInterval,
		RetryBackoff:  a.cfg.RetryBackoff,
		BatchSize:     a.cfg.BackfillBatch,
	}, a.log)
	if err != nil {
		return err
	}
	a.log.Info("chain client initialized", "contract", a.cfg.ContractAddress, "confirmations", a.cfg.Confirmations)

	deps := reconciler.Deps{
		Checkpoint: checkpoint,
		Source:     source,
		Pending:    redisstore.NewPendingStore(rdb, a.cfg.PaymentTTL),
		Ledger:     ledger,
	}
	if a.cfg.MigrationLock {
		deps.Locker = redisstore.NewLocker(rdb)
		a.log.Info("migration lock enabled", "ttl", a.cfg.MigrationLockTTL)
	}
	if a.cfg.BotToken != "" {
		tgBot, err := bot.New(a.cfg.BotToken)
		if err != nil {
			a.log.Error("init telegram bot, notifications disabled", "error", err)
		} else {
			deps.Notifier = notifier.New(tgBot, a.cfg.ExplorerURL, a.log)
			a.log.Info("telegram notifier initialized")
		}
	}

	rec := reconciler.New(deps, reconciler.Options{
		QueueSize:          a.cfg.QueueSize,
		BackfillBatch:      a.cfg.BackfillBatch,
		RetryBackoff:       a.cfg.RetryBackoff,
		LockTTL:            a.cfg.MigrationLockTTL,
		SubscriptionPeriod: a.cfg.SubscriptionPeriod,
	}, a.log)

	// Start health server
	healthServer := health.NewServer(rec, a.log)
	go func() {
		if err := healthServer.Start(ctx, a.cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("health server", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			a.log.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return rec.Start(ctx)
}
