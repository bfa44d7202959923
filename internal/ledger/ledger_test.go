package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suspectuso/chainpay/internal/payment"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	l, err := New(db)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func entry(id, tx string) payment.LedgerEntry {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return payment.LedgerEntry{
		PaymentID:   id,
		UserID:      10,
		TariffID:    "basic",
		Amount:      500,
		Status:      payment.StatusConfirmed,
		TxHash:      tx,
		BlockNumber: 100,
		PaidAmount:  "500",
		CreatedAt:   now,
		ConfirmedAt: now,
		ExpiresAt:   now.AddDate(0, 1, 0),
	}
}

func TestLedger_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	created, err := l.CreateIfAbsent(ctx, entry("p1", "0xaaa"))
	if err != nil || !created {
		t.Fatalf("first insert = %v, %v", created, err)
	}

	created, err = l.CreateIfAbsent(ctx, entry("p1", "0xbbb"))
	if err != nil {
		t.Fatalf("duplicate insert errored: %v", err)
	}
	if created {
		t.Fatal("duplicate insert reported created")
	}

	got, err := l.Find(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TxHash != "0xaaa" || got.Status != payment.StatusConfirmed || got.Amount != 500 {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestLedger_FindMissing(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Find(context.Background(), "missing"); !errors.Is(err, payment.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
