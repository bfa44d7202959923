package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sugawarayuuta/sonnet"

	"github.com/suspectuso/chainpay/internal/payment"
)

const pendingKeyPrefix = "transaction:"

// PendingStore holds issued payment intents until they are migrated or expire
type PendingStore struct {
	rdb        redis.Cmdable
	defaultTTL time.Duration
	now        func() time.Time
}

// NewPendingStore creates a store. defaultTTL applies to records without ExpiresAt.
func NewPendingStore(rdb redis.Cmdable, defaultTTL time.Duration) *PendingStore {
	return &PendingStore{
		rdb:        rdb,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func pendingKey(hash string) string {
	return pendingKeyPrefix + payment.NormalizeHash(hash)
}

// Create stores p under its payment hash with a TTL up to ExpiresAt.
// An existing record under the same hash is left untouched and ErrAlreadyExists is returned.
func (s *PendingStore) Create(ctx context.Context, p *payment.PendingPayment) error {
	ttl := s.defaultTTL
	if !p.ExpiresAt.IsZero() {
		ttl = p.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return fmt.Errorf("pending payment %s already expired", p.PaymentID)
	}

	data, err := sonnet.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, pendingKey(p.PaymentHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("set pending payment: %w", err)
	}
	if !ok {
		return payment.ErrAlreadyExists
	}
	return nil
}

// Find returns the pending payment for hash, or ErrNotFound if it is absent or expired
func (s *PendingStore) Find(ctx context.Context, hash string) (*payment.PendingPayment, error) {
	data, err := s.rdb.Get(ctx, pendingKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, payment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending payment: %w", err)
	}

	var p payment.PendingPayment
	if err := sonnet.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending payment: %w", err)
	}
	if !p.ExpiresAt.IsZero() && !s.now().Before(p.ExpiresAt) {
		return nil, payment.ErrNotFound
	}
	p.PaymentHash = payment.NormalizeHash(hash)
	return &p, nil
}

// Delete removes the record. A missing key is not an error.
func (s *PendingStore) Delete(ctx context.Context, hash string) error {
	if err := s.rdb.Del(ctx, pendingKey(hash)).Err(); err != nil {
		return fmt.Errorf("delete pending payment: %w", err)
	}
	return nil
}
