package reconciler

import (
	"context"

	"github.com/suspectuso/chainpay/internal/payment"
)

// item is either an event or, when event is nil, the high-water mark of a finished backfill pass
type item struct {
	event *payment.Event
	mark  uint64
}

// queue is a bounded FIFO. Producers block while it is full; nothing is dropped.
type queue struct {
	ch chan item
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 1
	}
	return &queue{ch: make(chan item, size)}
}

func (q *queue) push(ctx context.Context, it item) error {
	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) pop(ctx context.Context) (item, error) {
	select {
	case it := <-q.ch:
		return it, nil
	case <-ctx.Done():
		return item{}, ctx.Err()
	}
}

func (q *queue) len() int {
	return len(q.ch)
}
