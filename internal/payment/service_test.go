package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type memPending struct {
	items map[string]*PendingPayment
	err   error
}

func (m *memPending) Create(ctx context.Context, p *PendingPayment) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.items[p.PaymentHash]; ok {
		return ErrAlreadyExists
	}
	m.items[p.PaymentHash] = p
	return nil
}

type memLedger map[string]*LedgerEntry

func (m memLedger) Find(ctx context.Context, id string) (*LedgerEntry, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIssuer_Issue(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	newIssuer := func(store PendingWriter) *Issuer {
		iss := NewIssuer(store, time.Hour, testLogger())
		iss.now = func() time.Time { return fixed }
		iss.newID = func() string { return "pay-1" }
		return iss
	}

	t.Run("active tariff creates a hashed pending record", func(t *testing.T) {
		store := &memPending{items: map[string]*PendingPayment{}}
		p, err := newIssuer(store).Issue(ctx, 42, Tariff{ID: "pro", Price: 500, IsActive: true})
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if p.PaymentHash != ComputeHash("pay-1", "pro", 500) {
			t.Errorf("unexpected hash %s", p.PaymentHash)
		}
		if !p.ExpiresAt.Equal(fixed.Add(time.Hour)) {
			t.Errorf("ExpiresAt = %v", p.ExpiresAt)
		}
		if store.items[p.PaymentHash] != p {
			t.Error("pending record not stored under its hash")
		}
	})

	t.Run("inactive tariff is rejected", func(t *testing.T) {
		store := &memPending{items: map[string]*PendingPayment{}}
		_, err := newIssuer(store).Issue(ctx, 42, Tariff{ID: "old", Price: 500})
		if !errors.Is(err, ErrTariffInactive) {
			t.Fatalf("expected ErrTariffInactive, got %v", err)
		}
		if len(store.items) != 0 {
			t.Error("nothing should be stored")
		}
	})

	t.Run("store failure is returned", func(t *testing.T) {
		store := &memPending{items: map[string]*PendingPayment{}, err: errors.New("redis down")}
		if _, err := newIssuer(store).Issue(ctx, 1, Tariff{ID: "pro", Price: 1, IsActive: true}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestChecker_IsPaid(t *testing.T) {
	ctx := context.Background()
	c := NewChecker(memLedger{"paid": {PaymentID: "paid"}})

	if ok, err := c.IsPaid(ctx, "paid"); err != nil || !ok {
		t.Errorf("IsPaid(paid) = %v, %v", ok, err)
	}
	if ok, err := c.IsPaid(ctx, "unknown"); err != nil || ok {
		t.Errorf("IsPaid(unknown) = %v, %v", ok, err)
	}
}
