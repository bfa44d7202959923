package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suspectuso/chainpay/internal/payment"
)

const notifyTimeout = 5 * time.Second

// process correlates one event with its pending payment. It never panics or
// returns; failures are logged and counted.
func (r *Reconciler) process(ctx context.Context, ev payment.Event) {
	r.events.Add(1)

	defer func() {
		if rec := recover(); rec != nil {
			r.failures.Add(1)
			r.log.Error("panic while processing event",
				"payment_hash", ev.PaymentHash,
				"tx_hash", ev.TxHash,
				"panic", rec,
			)
		}
	}()

	p, err := r.pending.Find(ctx, ev.PaymentHash)
	if errors.Is(err, payment.ErrNotFound) {
		r.orphans.Add(1)
		r.log.Debug("no pending payment for event",
			"payment_hash", ev.PaymentHash,
			"tx_hash", ev.TxHash,
			"block", ev.BlockNumber,
		)
		return
	}
	if err != nil {
		r.failures.Add(1)
		r.log.Error("find pending payment", "payment_hash", ev.PaymentHash, "error", err)
		return
	}

	if err := r.migrate(ctx, p, ev); err != nil {
		r.failures.Add(1)
		r.log.Error("migrate payment",
			"payment_id", p.PaymentID,
			"payment_hash", ev.PaymentHash,
			"tx_hash", ev.TxHash,
			"error", err,
		)
	}
}

// migrate writes the ledger entry and, once the ledger has it, deletes the pending record
func (r *Reconciler) migrate(ctx context.Context, p *payment.PendingPayment, ev payment.Event) error {
	if r.locker != nil {
		ok, err := r.locker.TryAcquire(ctx, p.PaymentID, r.opts.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if !ok {
			r.log.Info("migration in progress elsewhere", "payment_id", p.PaymentID)
			return nil
		}
		defer func() {
			if err := r.locker.Release(ctx, p.PaymentID); err != nil {
				r.log.Warn("release migration lock", "payment_id", p.PaymentID, "error", err)
			}
		}()
	}

	entry := payment.NewLedgerEntry(p, ev, r.now(), r.opts.SubscriptionPeriod)
	created, err := r.ledger.CreateIfAbsent(ctx, entry)
	if err != nil {
		return fmt.Errorf("%w: %w", payment.ErrLedgerWrite, err)
	}

	// The ledger has the payment either way, so the pending record goes.
	if err := r.pending.Delete(ctx, ev.PaymentHash); err != nil {
		r.log.Warn("delete pending payment", "payment_id", p.PaymentID, "error", err)
	}

	if !created {
		r.duplicates.Add(1)
		r.log.Info("payment already in ledger", "payment_id", p.PaymentID, "tx_hash", ev.TxHash)
		return nil
	}

	r.migrated.Add(1)
	r.log.Info("payment confirmed",
		"payment_id", p.PaymentID,
		"user_id", p.UserID,
		"tariff_id", p.TariffID,
		"amount", p.Amount,
		"from", ev.FromAddress,
		"tx_hash", ev.TxHash,
		"block", ev.BlockNumber,
	)

	if r.notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := r.notifier.PaymentConfirmed(nctx, entry); err != nil {
			r.log.Warn("notify payment confirmed", "payment_id", p.PaymentID, "error", err)
		}
	}
	return nil
}
