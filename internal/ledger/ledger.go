// Package ledger is the Postgres-backed durable record of confirmed payments.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/suspectuso/chainpay/internal/payment"
)

// Transaction is a row of the transactions table
type Transaction struct {
	PaymentID   string `gorm:"primaryKey;size:36"`
	UserID      int64  `gorm:"not null;index"`
	TariffID    string `gorm:"size:64;not null"`
	Amount      int64  `gorm:"not null"`
	Status      string `gorm:"size:20;not null;default:'pending'"`
	FromAddress string `gorm:"size:42"`
	TxHash      string `gorm:"size:66"`
	BlockNumber int64  `gorm:"not null"`
	PaidAmount  string `gorm:"size:78;not null"` // uint256 in decimal
	CreatedAt   time.Time
	ConfirmedAt time.Time
	ExpiresAt   time.Time
}

func (Transaction) TableName() string {
	return "transactions"
}

type Ledger struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema
func Open(dsn string) (*Ledger, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db)
}

// New wraps an open gorm connection
func New(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&Transaction{}); err != nil {
		return nil, fmt.Errorf("migrate transactions: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateIfAbsent inserts e unless its payment_id exists. Returns true if inserted.
func (l *Ledger) CreateIfAbsent(ctx context.Context, e payment.LedgerEntry) (bool, error) {
	row := Transaction{
		PaymentID:   e.PaymentID,
		UserID:      e.UserID,
		TariffID:    e.TariffID,
		Amount:      int64(e.Amount),
		Status:      e.Status,
		FromAddress: e.FromAddress,
		TxHash:      e.TxHash,
		BlockNumber: int64(e.BlockNumber),
		PaidAmount:  e.PaidAmount,
		CreatedAt:   e.CreatedAt,
		ConfirmedAt: e.ConfirmedAt,
		ExpiresAt:   e.ExpiresAt,
	}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "payment_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert transaction: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Find returns the entry for paymentID or payment.ErrNotFound
func (l *Ledger) Find(ctx context.Context, paymentID string) (*payment.LedgerEntry, error) {
	var row Transaction
	err := l.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &payment.LedgerEntry{
		PaymentID:   row.PaymentID,
		UserID:      row.UserID,
		TariffID:    row.TariffID,
		Amount:      uint64(row.Amount),
		Status:      row.Status,
		FromAddress: row.FromAddress,
		TxHash:      row.TxHash,
		BlockNumber: uint64(row.BlockNumber),
		PaidAmount:  row.PaidAmount,
		CreatedAt:   row.CreatedAt,
		ConfirmedAt: row.ConfirmedAt,
		ExpiresAt:   row.ExpiresAt,
	}, nil
}
