package payment

import (
	"errors"
	"math/big"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrTariffInactive = errors.New("tariff inactive")

	// ErrRPC marks chain transport failures, timeouts included. Always retryable.
	ErrRPC = errors.New("rpc error")
	// ErrDecode marks a chain log that cannot be turned into an Event.
	ErrDecode = errors.New("decode error")
	// ErrLedgerWrite marks a failed durable write. The pending record is kept.
	ErrLedgerWrite = errors.New("ledger write failed")
)

const StatusConfirmed = "confirmed"

// Tariff is the part of a tariff an intent is priced from
type Tariff struct {
	ID       string
	Name     string
	Price    uint64
	IsActive bool
}

// PendingPayment is an issued intent waiting for its on-chain transfer
type PendingPayment struct {
	PaymentID   string    `json:"payment_id"`
	UserID      int64     `json:"user_id"`
	TariffID    string    `json:"tariff_id"`
	Amount      uint64    `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	PaymentHash string    `json:"-"`
}

// Event is a decoded PaymentReceived log
type Event struct {
	PaymentHash string
	FromAddress string
	Amount      *big.Int
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string
	LogIndex    uint
}

// LedgerEntry is a confirmed payment. One per PaymentID.
type LedgerEntry struct {
	PaymentID   string
	UserID      int64
	TariffID    string
	Amount      uint64
	Status      string
	FromAddress string
	TxHash      string
	BlockNumber uint64
	PaidAmount  string // uint256, decimal
	CreatedAt   time.Time
	ConfirmedAt time.Time
	ExpiresAt   time.Time
}

// NewLedgerEntry builds the durable record for a pending payment matched by ev.
// period is the subscription length granted by the payment.
func NewLedgerEntry(p *PendingPayment, ev Event, confirmedAt time.Time, period time.Duration) LedgerEntry {
	paid := "0"
	if ev.Amount != nil {
		paid = ev.Amount.String()
	}
	return LedgerEntry{
		PaymentID:   p.PaymentID,
		UserID:      p.UserID,
		TariffID:    p.TariffID,
		Amount:      p.Amount,
		Status:      StatusConfirmed,
		FromAddress: ev.FromAddress,
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		PaidAmount:  paid,
		CreatedAt:   p.CreatedAt,
		ConfirmedAt: confirmedAt,
		ExpiresAt:   confirmedAt.Add(period),
	}
}
