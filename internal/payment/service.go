package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PendingWriter stores issued intents until they are paid or expire
type PendingWriter interface {
	Create(ctx context.Context, p *PendingPayment) error
}

// LedgerReader looks up confirmed payments
type LedgerReader interface {
	Find(ctx context.Context, paymentID string) (*LedgerEntry, error)
}

// Issuer creates payment intents
type Issuer struct {
	store PendingWriter
	ttl   time.Duration
	log   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewIssuer creates an Issuer whose intents live for ttl
func NewIssuer(store PendingWriter, ttl time.Duration, log *slog.Logger) *Issuer {
	return &Issuer{
		store: store,
		ttl:   ttl,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// Issue creates a pending payment for userID priced from tariff.
// The returned PaymentHash is what the payer's wallet must submit on-chain.
func (i *Issuer) Issue(ctx context.Context, userID int64, tariff Tariff) (*PendingPayment, error) {
	if !tariff.IsActive {
		return nil, fmt.Errorf("issue payment for tariff %s: %w", tariff.ID, ErrTariffInactive)
	}

	now := i.now()
	p := &PendingPayment{
		PaymentID: i.newID(),
		UserID:    userID,
		TariffID:  tariff.ID,
		Amount:    tariff.Price,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}
	p.PaymentHash = ComputeHash(p.PaymentID, p.TariffID, p.Amount)

	if err := i.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("store pending payment: %w", err)
	}

	i.log.Info("payment issued",
		"payment_id", p.PaymentID,
		"user_id", userID,
		"tariff_id", tariff.ID,
		"amount", p.Amount,
		"payment_hash", p.PaymentHash,
	)
	return p, nil
}

// Checker answers whether a payment reached the ledger
type Checker struct {
	ledger LedgerReader
}

func NewChecker(ledger LedgerReader) *Checker {
	return &Checker{ledger: ledger}
}

// IsPaid reports whether paymentID has a ledger entry
func (c *Checker) IsPaid(ctx context.Context, paymentID string) (bool, error) {
	_, err := c.ledger.Find(ctx, paymentID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
