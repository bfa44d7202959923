package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "migrating:"

// release deletes the lock only if this instance still owns it
var release = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker is a TTL'd mutual exclusion marker shared by reconciler instances
type Locker struct {
	rdb   redis.Cmdable
	token string
}

func NewLocker(rdb redis.Cmdable) *Locker {
	return &Locker{rdb: rdb, token: uuid.NewString()}
}

// TryAcquire takes migrating:{key} for ttl. It reports false if another owner holds it.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKeyPrefix+key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release frees a lock taken by this Locker
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := release.Run(ctx, l.rdb, []string{lockKeyPrefix + key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
