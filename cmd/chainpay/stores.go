package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/suspectuso/chainpay/internal/ledger"
	"github.com/suspectuso/chainpay/internal/payment"
	"github.com/suspectuso/chainpay/internal/reconciler"
	"github.com/suspectuso/chainpay/internal/redisstore"
	"github.com/suspectuso/chainpay/internal/storage"
)

// durable is the ledger as the commands use it
type durable interface {
	reconciler.Ledger
	payment.LedgerReader
	Close() error
}

// stores holds the opened backends. Close releases whatever was opened.
type stores struct {
	redis  *redis.Client
	sqlite *storage.Storage
	ledger durable
}

func (a *app) openRedis(ctx context.Context, s *stores) (*redis.Client, error) {
	if s.redis != nil {
		return s.redis, nil
	}
	rdb, err := redisstore.Open(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	s.redis = rdb
	a.log.Info("redis connected")
	return rdb, nil
}

func (a *app) openSQLite(s *stores) (*storage.Storage, error) {
	if s.sqlite != nil {
		return s.sqlite, nil
	}
	store, err := storage.New(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	s.sqlite = store
	a.log.Info("storage initialized", "path", a.cfg.DBPath)
	return store, nil
}

func (a *app) openLedger(s *stores) (durable, error) {
	if s.ledger != nil {
		return s.ledger, nil
	}

	switch a.cfg.LedgerDriver {
	case "postgres":
		l, err := ledger.Open(a.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.ledger = l
		a.log.Info("postgres ledger initialized")
	case "sqlite":
		store, err := a.openSQLite(s)
		if err != nil {
			return nil, err
		}
		s.ledger = store
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", a.cfg.LedgerDriver)
	}
	return s.ledger, nil
}

func (a *app) openCheckpoint(ctx context.Context, s *stores) (reconciler.Checkpoint, error) {
	switch a.cfg.CheckpointBackend {
	case "redis":
		rdb, err := a.openRedis(ctx, s)
		if err != nil {
			return nil, err
		}
		return redisstore.NewCheckpoint(rdb), nil
	case "sqlite":
		return a.openSQLite(s)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", a.cfg.CheckpointBackend)
	}
}

func (s *stores) Close() {
	// sqlite may back the ledger too, so close it once
	if s.ledger != nil && s.ledger != durable(s.sqlite) {
		s.ledger.Close()
	}
	if s.sqlite != nil {
		s.sqlite.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}
