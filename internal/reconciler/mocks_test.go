package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/suspectuso/chainpay/internal/payment"
)

// =============================================================================
// Checkpoint
// =============================================================================

type memCheckpoint struct {
	mu      sync.Mutex
	block   uint64
	ok      bool
	readErr error
	writes  []uint64
}

func (m *memCheckpoint) LastBlock(ctx context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block, m.ok, m.readErr
}

func (m *memCheckpoint) SetLastBlock(ctx context.Context, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, block)
	m.block = max(m.block, block)
	m.ok = true
	return nil
}

func (m *memCheckpoint) get() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block
}

// =============================================================================
// Event source
// =============================================================================

type rangeCall struct{ from, to uint64 }

type fakeSource struct {
	mu         sync.Mutex
	head       uint64
	history    []payment.Event
	rangeErrs  int
	calls      []rangeCall
	subFrom    uint64
	live       chan payment.Event
}

func newFakeSource(head uint64, history ...payment.Event) *fakeSource {
	return &fakeSource{head: head, history: history, live: make(chan payment.Event, 16)}
}

func (f *fakeSource) CurrentHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) Events(ctx context.Context, from, to uint64) ([]payment.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rangeCall{from, to})
	if f.rangeErrs > 0 {
		f.rangeErrs--
		return nil, payment.ErrRPC
	}
	var out []payment.Event
	for _, ev := range f.history {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeSource) Subscribe(ctx context.Context, from uint64, fn func(context.Context, payment.Event) error) error {
	f.mu.Lock()
	f.subFrom = from
	f.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.live:
			if err := fn(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (f *fakeSource) subscribedFrom() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subFrom
}

func (f *fakeSource) rangeCalls() []rangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rangeCall(nil), f.calls...)
}

// =============================================================================
// Pending store
// =============================================================================

type memPending struct {
	mu      sync.Mutex
	items   map[string]*payment.PendingPayment
	findErr error
}

func newMemPending(ps ...*payment.PendingPayment) *memPending {
	m := &memPending{items: map[string]*payment.PendingPayment{}}
	for _, p := range ps {
		m.items[p.PaymentHash] = p
	}
	return m
}

func (m *memPending) Find(ctx context.Context, hash string) (*payment.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.items[hash]
	if !ok {
		return nil, payment.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPending) Delete(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, hash)
	return nil
}

func (m *memPending) has(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[hash]
	return ok
}

// =============================================================================
// Ledger
// =============================================================================

type memLedger struct {
	mu      sync.Mutex
	entries map[string]payment.LedgerEntry
	writes  int
	err     error
	delay   time.Duration
	panics  bool

	entered chan struct{} // signalled when a write starts, if set
	gate    chan struct{} // write waits on it, if set
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]payment.LedgerEntry{}}
}

func (m *memLedger) CreateIfAbsent(ctx context.Context, e payment.LedgerEntry) (bool, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics {
		panic("ledger exploded")
	}
	m.writes++
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.entries[e.PaymentID]; ok {
		return false, nil
	}
	m.entries[e.PaymentID] = e
	return true, nil
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memLedger) get(id string) (payment.LedgerEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *memLedger) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// =============================================================================
// Locker / Notifier
// =============================================================================

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *memLocker) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

type recNotifier struct {
	mu   sync.Mutex
	sent []payment.LedgerEntry
	err  error
}

func (n *recNotifier) PaymentConfirmed(ctx context.Context, e payment.LedgerEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
	return n.err
}

// =============================================================================
// Helpers
// =============================================================================

var errStoreDown = errors.New("store down")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingFor(id, tariff string, amount uint64) *payment.PendingPayment {
	return &payment.PendingPayment{
		PaymentID:   id,
		UserID:      77,
		TariffID:    tariff,
		Amount:      amount,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
		PaymentHash: payment.ComputeHash(id, tariff, amount),
	}
}

func eventFor(p *payment.PendingPayment, block uint64) payment.Event {
	return payment.Event{
		PaymentHash: p.PaymentHash,
		FromAddress: "0x00000000000000000000000000000000000000Aa",
		Amount:      new(big.Int).SetUint64(p.Amount),
		BlockNumber: block,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
		TxHash:      "0xtx",
	}
}

func orphanEvent(block uint64) payment.Event {
	return payment.Event{
		PaymentHash: payment.ComputeHash("nobody", "none", 1),
		Amount:      big.NewInt(1),
		BlockNumber: block,
	}
}

func testOptions() Options {
	return Options{
		QueueSize:     16,
		BackfillBatch: 50,
		RetryBackoff:  5 * time.Millisecond,
		EventTimeout:  time.Second,
	}
}

func waitFor(t interface {
	Helper()
	Fatalf(string, ...any)
}, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
