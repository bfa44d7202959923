package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const lastBlockKey = "last_processed_block"

// setMax only ever moves the stored height forward
var setMax = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur or tonumber(ARGV[1]) > tonumber(cur) then
	redis.call('SET', KEYS[1], ARGV[1])
	return ARGV[1]
end
return cur
`)

// Checkpoint stores the last processed block height
type Checkpoint struct {
	rdb redis.Cmdable
	key string
}

func NewCheckpoint(rdb redis.Cmdable) *Checkpoint {
	return &Checkpoint{rdb: rdb, key: lastBlockKey}
}

// LastBlock returns the stored height; ok is false if nothing was stored yet
func (c *Checkpoint) LastBlock(ctx context.Context) (uint64, bool, error) {
	val, err := c.rdb.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint: %w", err)
	}

	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse checkpoint %q: %w", val, err)
	}
	return block, true, nil
}

// SetLastBlock stores max(current, block)
func (c *Checkpoint) SetLastBlock(ctx context.Context, block uint64) error {
	err := setMax.Run(ctx, c.rdb, []string{c.key}, strconv.FormatUint(block, 10)).Err()
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
