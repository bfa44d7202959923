package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/suspectuso/chainpay/internal/payment"
)

// RPC is the part of the node API the client needs. *ethclient.Client implements it.
type RPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type Options struct {
	Contract      string
	Confirmations uint64
	Timeout       time.Duration // per RPC call
	PollInterval  time.Duration
	RetryBackoff  time.Duration
	BatchSize     uint64 // max blocks per eth_getLogs
	MinDelay      time.Duration // min spacing between RPC calls
}

// Client reads PaymentReceived events of one contract
type Client struct {
	rpc      RPC
	contract common.Address
	topic    common.Hash
	opts     Options
	log      *slog.Logger

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
}

// Dial connects to the node at url
func Dial(ctx context.Context, url string, opts Options, log *slog.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewClient(rpc, opts, log), nil
}

// NewClient creates a client over an existing RPC connection
func NewClient(rpc RPC, opts Options, log *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Second
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 2000
	}

	return &Client{
		rpc:      rpc,
		contract: common.HexToAddress(opts.Contract),
		topic:    PaymentReceivedTopic,
		opts:     opts,
		log:      log,
	}
}

func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.opts.MinDelay - time.Since(c.lastCall); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	c.lastCall = time.Now()
	return nil
}

// CurrentHeight returns the newest block with enough confirmations
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", payment.ErrRPC, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %w", payment.ErrRPC, err)
	}

	if head < c.opts.Confirmations {
		return 0, nil
	}
	return head - c.opts.Confirmations, nil
}

// Events returns the payment events in [from, to]. Logs that cannot be decoded are skipped.
func (c *Client) Events(ctx context.Context, from, to uint64) ([]payment.Event, error) {
	if from > to {
		return nil, nil
	}
	if err := c.throttle(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrRPC, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	logs, err := c.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{c.topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get logs %d-%d: %w", payment.ErrRPC, from, to, err)
	}

	events := make([]payment.Event, 0, len(logs))
	for i := range logs {
		ev, err := DecodeLog(&logs[i])
		if err != nil {
			c.log.Warn("skip log",
				"tx_hash", logs[i].TxHash.Hex(),
				"block", logs[i].BlockNumber,
				"error", err,
			)
			continue
		}
		events = append(events, ev)
	}

	c.log.Debug("fetched events", "from", from, "to", to, "logs", len(logs), "events", len(events))
	return events, nil
}

// Subscribe delivers events from block `from` onward to fn until ctx is cancelled.
// RPC failures are retried after RetryBackoff; it only returns ctx.Err() or an error from fn.
func (c *Client) Subscribe(ctx context.Context, from uint64, fn func(context.Context, payment.Event) error) error {
	next := from
	c.log.Info("live subscription started", "from", next)

	for {
		head, err := c.CurrentHeight(ctx)
		if err != nil {
			c.log.Warn("live poll: current height", "error", err, "retry_in", c.opts.RetryBackoff)
			if !sleep(ctx, c.opts.RetryBackoff) {
				return ctx.Err()
			}
			continue
		}

		if head < next {
			if !sleep(ctx, c.opts.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		to := head
		if to-next+1 > c.opts.BatchSize {
			to = next + c.opts.BatchSize - 1
		}

		events, err := c.Events(ctx, next, to)
		if err != nil {
			c.log.Warn("live poll: get events", "from", next, "to", to, "error", err, "retry_in", c.opts.RetryBackoff)
			if !sleep(ctx, c.opts.RetryBackoff) {
				return ctx.Err()
			}
			continue
		}

		for _, ev := range events {
			if err := fn(ctx, ev); err != nil {
				return err
			}
		}
		next = to + 1

		// Still behind head: fetch the next range right away.
		if to < head {
			continue
		}
		if !sleep(ctx, c.opts.PollInterval) {
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
