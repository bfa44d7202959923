package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/suspectuso/chainpay/internal/payment"
)

const lastBlockKey = "last_processed_block"

// Storage is the SQLite durable ledger. It can also hold the checkpoint.
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			payment_id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			tariff_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			status TEXT NOT NULL,
			from_address TEXT,
			tx_hash TEXT,
			block_number INTEGER NOT NULL,
			paid_amount TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			confirmed_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,

		`CREATE TABLE IF NOT EXISTS checkpoints (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Ledger ---

// CreateIfAbsent writes the entry unless its payment_id is already recorded.
// Returns true if the row was inserted.
func (s *Storage) CreateIfAbsent(ctx context.Context, e payment.LedgerEntry) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO transactions
		 (payment_id, user_id, tariff_id, amount, status, from_address, tx_hash,
		  block_number, paid_amount, created_at, confirmed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PaymentID, e.UserID, e.TariffID, int64(e.Amount), e.Status, e.FromAddress, e.TxHash,
		int64(e.BlockNumber), e.PaidAmount, e.CreatedAt.Unix(), e.ConfirmedAt.Unix(), e.ExpiresAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Find returns the ledger entry for a payment
func (s *Storage) Find(ctx context.Context, paymentID string) (*payment.LedgerEntry, error) {
	var e payment.LedgerEntry
	var amount, block int64
	var fromAddr, txHash sql.NullString
	var createdAt, confirmedAt, expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT payment_id, user_id, tariff_id, amount, status, from_address, tx_hash,
		        block_number, paid_amount, created_at, confirmed_at, expires_at
		 FROM transactions WHERE payment_id = ?`,
		paymentID,
	).Scan(&e.PaymentID, &e.UserID, &e.TariffID, &amount, &e.Status, &fromAddr, &txHash,
		&block, &e.PaidAmount, &createdAt, &confirmedAt, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.Amount = uint64(amount)
	e.BlockNumber = uint64(block)
	e.FromAddress = fromAddr.String
	e.TxHash = txHash.String
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.ConfirmedAt = time.Unix(confirmedAt, 0).UTC()
	e.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	return &e, nil
}

// --- Checkpoint ---

// LastBlock returns the last processed block; ok is false if none was stored yet
func (s *Storage) LastBlock(ctx context.Context) (uint64, bool, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM checkpoints WHERE name = ?",
		lastBlockKey,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(value), true, nil
}

// SetLastBlock stores block unless a higher value is already stored
func (s *Storage) SetLastBlock(ctx context.Context, block uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`,
		lastBlockKey, int64(block),
	)
	return err
}
