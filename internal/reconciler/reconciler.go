// Package reconciler watches the chain for PaymentReceived events and moves the
// matching pending payments into the durable ledger.
//
// Three goroutines run for the life of the process: a one-shot backfill over
// [checkpoint+1, head], a live subscription from head+1, and a single consumer.
// Both producers feed one bounded queue, so events reach the consumer in no
// particular block order and the same event may arrive twice. Correctness rests
// on the stores: a delivered event whose pending record is gone is a no-op, and
// the ledger write is create-if-absent.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/suspectuso/chainpay/internal/payment"
)

// Checkpoint persists the last processed block height
type Checkpoint interface {
	LastBlock(ctx context.Context) (block uint64, ok bool, err error)
	SetLastBlock(ctx context.Context, block uint64) error
}

// EventSource reads payment events from the chain
type EventSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	Events(ctx context.Context, from, to uint64) ([]payment.Event, error)
	Subscribe(ctx context.Context, from uint64, fn func(context.Context, payment.Event) error) error
}

// PendingStore holds payment intents awaiting confirmation.
// Find returns payment.ErrNotFound for absent and expired records alike.
type PendingStore interface {
	Find(ctx context.Context, hash string) (*payment.PendingPayment, error)
	Delete(ctx context.Context, hash string) error
}

// Ledger is the durable record. CreateIfAbsent reports false for an existing payment_id.
type Ledger interface {
	CreateIfAbsent(ctx context.Context, e payment.LedgerEntry) (bool, error)
}

// Locker guards a migration across reconciler instances
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Notifier is told about payments that were just confirmed
type Notifier interface {
	PaymentConfirmed(ctx context.Context, e payment.LedgerEntry) error
}

type Deps struct {
	Checkpoint Checkpoint
	Source     EventSource
	Pending    PendingStore
	Ledger     Ledger
	Locker     Locker   // optional
	Notifier   Notifier // optional
}

type Options struct {
	QueueSize          int
	BackfillBatch      uint64
	RetryBackoff       time.Duration
	LockTTL            time.Duration
	SubscriptionPeriod time.Duration
	// EventTimeout bounds the processing of one event. It also bounds how long
	// shutdown waits for the event in flight.
	EventTimeout time.Duration
}

// Stats is a point-in-time view of the pipeline
type Stats struct {
	Events       uint64 `json:"events"`
	Migrated     uint64 `json:"migrated"`
	Duplicates   uint64 `json:"duplicates"`
	Orphans      uint64 `json:"orphans"`
	Failures     uint64 `json:"failures"`
	Checkpoint   uint64 `json:"checkpoint"`
	QueueDepth   int    `json:"queue_depth"`
	BackfillDone bool   `json:"backfill_done"`
}

type Reconciler struct {
	checkpoint Checkpoint
	source     EventSource
	pending    PendingStore
	ledger     Ledger
	locker     Locker
	notifier   Notifier

	opts  Options
	queue *queue
	log   *slog.Logger
	now   func() time.Time

	// consumer-owned
	backfillHead uint64
	liveHigh     uint64

	lastBlock    atomic.Uint64
	backfillDone atomic.Bool
	events       atomic.Uint64
	migrated     atomic.Uint64
	duplicates   atomic.Uint64
	orphans      atomic.Uint64
	failures     atomic.Uint64
}

// New creates a Reconciler. Locker and Notifier in d may be nil.
func New(d Deps, opts Options, log *slog.Logger) *Reconciler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BackfillBatch == 0 {
		opts.BackfillBatch = 2000
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.SubscriptionPeriod <= 0 {
		opts.SubscriptionPeriod = 30 * 24 * time.Hour
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 30 * time.Second
	}

	return &Reconciler{
		checkpoint: d.Checkpoint,
		source:     d.Source,
		pending:    d.Pending,
		ledger:     d.Ledger,
		locker:     d.Locker,
		notifier:   d.Notifier,
		opts:       opts,
		queue:      newQueue(opts.QueueSize),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the pipeline until ctx is cancelled. The only error it returns is
// a failure to read the checkpoint at startup.
func (r *Reconciler) Start(ctx context.Context) error {
	last, ok, err := r.checkpoint.LastBlock(ctx)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if !ok {
		r.log.Info("no checkpoint stored, starting from genesis")
	}
	r.lastBlock.Store(last)

	head, err := r.currentHeight(ctx)
	if err != nil {
		return nil // cancelled before the chain answered
	}
	r.backfillHead = head

	r.log.Info("reconciler started", "checkpoint", last, "head", head, "queue_size", r.opts.QueueSize)

	var g errgroup.Group
	g.Go(func() error {
		return r.backfill(ctx, last+1, head)
	})
	g.Go(func() error {
		return r.source.Subscribe(ctx, head+1, func(ctx context.Context, ev payment.Event) error {
			return r.queue.push(ctx, item{event: &ev})
		})
	})
	g.Go(func() error {
		r.consume(ctx)
		return nil
	})

	err = g.Wait()
	r.log.Info("reconciler stopped", "checkpoint", r.lastBlock.Load())
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		r.log.Error("reconciler loop exited", "error", err)
	}
	return nil
}

// Stats returns current counters
func (r *Reconciler) Stats() Stats {
	return Stats{
		Events:       r.events.Load(),
		Migrated:     r.migrated.Load(),
		Duplicates:   r.duplicates.Load(),
		Orphans:      r.orphans.Load(),
		Failures:     r.failures.Load(),
		Checkpoint:   r.lastBlock.Load(),
		QueueDepth:   r.queue.len(),
		BackfillDone: r.backfillDone.Load(),
	}
}

func (r *Reconciler) currentHeight(ctx context.Context) (uint64, error) {
	for {
		head, err := r.source.CurrentHeight(ctx)
		if err == nil {
			return head, nil
		}
		r.log.Warn("current height", "error", err, "retry_in", r.opts.RetryBackoff)
		if !sleep(ctx, r.opts.RetryBackoff) {
			return 0, ctx.Err()
		}
	}
}

// backfill enqueues every event in [from, to], then the mark `to`
func (r *Reconciler) backfill(ctx context.Context, from, to uint64) error {
	if from > to {
		r.log.Info("backfill not needed", "from", from, "head", to)
		return r.queue.push(ctx, item{mark: to})
	}

	r.log.Info("backfill started", "from", from, "to", to)
	total := 0

	for start := from; start <= to; {
		end := to
		if end-start+1 > r.opts.BackfillBatch {
			end = start + r.opts.BackfillBatch - 1
		}

		events, err := r.source.Events(ctx, start, end)
		if err != nil {
			r.log.Warn("backfill range", "from", start, "to", end, "error", err, "retry_in", r.opts.RetryBackoff)
			if !sleep(ctx, r.opts.RetryBackoff) {
				return ctx.Err()
			}
			continue
		}

		for i := range events {
			if err := r.queue.push(ctx, item{event: &events[i]}); err != nil {
				return err
			}
		}
		total += len(events)
		start = end + 1
	}

	if err := r.queue.push(ctx, item{mark: to}); err != nil {
		return err
	}
	r.log.Info("backfill complete", "from", from, "to", to, "events", total)
	return nil
}

// consume drains the queue until ctx is cancelled. The item in hand is always
// finished on a context that outlives the cancellation.
func (r *Reconciler) consume(ctx context.Context) {
	for {
		it, err := r.queue.pop(ctx)
		if err != nil {
			return
		}

		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.EventTimeout)
		if it.event != nil {
			r.process(ictx, *it.event)
			r.advance(ictx, it.event.BlockNumber, false)
		} else {
			r.advance(ictx, it.mark, true)
		}
		cancel()
	}
}

// advance moves the checkpoint to max(checkpoint, block).
// Live events past the backfill head are held back until the backfill mark
// arrives, so a restart never skips backfill events still in the queue.
func (r *Reconciler) advance(ctx context.Context, block uint64, mark bool) {
	if mark {
		r.backfillDone.Store(true)
		block = max(block, r.liveHigh)
	} else if !r.backfillDone.Load() && block > r.backfillHead {
		r.liveHigh = max(r.liveHigh, block)
		return
	}

	if block <= r.lastBlock.Load() {
		return
	}
	if err := r.checkpoint.SetLastBlock(ctx, block); err != nil {
		r.log.Error("set checkpoint", "block", block, "error", err)
		return
	}
	r.lastBlock.Store(block)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
