package session

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/reckoning/internal/protocol"
)

var ErrOutboxClosed = errors.New("session: outbox closed")

// Outbox queues operations for one connection writer.
//
// When full, the oldest queued world update is evicted to make room. Other
// operations are never evicted and may push the queue past its limit.
type Outbox struct {
	mu      sync.Mutex
	items   []protocol.Operation
	limit   int
	closed  bool
	dropped uint64
	notify  chan struct{}
}

func NewOutbox(limit int) *Outbox {
	if limit <= 0 {
		limit = DefaultConfig().SendQueue
	}
	return &Outbox{
		items:  make([]protocol.Operation, 0, limit),
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// Push queues op. It reports whether a world update was dropped to honor
// the limit, which may be op itself.
func (o *Outbox) Push(op protocol.Operation) (dropped bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, ErrOutboxClosed
	}
	if len(o.items) >= o.limit {
		if i := o.oldestWorldUpdate(); i >= 0 {
			o.items = append(o.items[:i], o.items[i+1:]...)
			dropped = true
		} else if _, ok := op.(protocol.ServerWorldUpdate); ok {
			o.dropped++
			return true, nil
		}
	}
	if dropped {
		o.dropped++
	}
	o.items = append(o.items, op)
	o.signal()
	return dropped, nil
}

// Pop blocks until an operation is queued, ctx is done, or the outbox is
// closed and drained.
func (o *Outbox) Pop(ctx context.Context) (protocol.Operation, error) {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			op := o.items[0]
			o.items[0] = nil
			o.items = o.items[1:]
			o.mu.Unlock()
			return op, nil
		}
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return nil, ErrOutboxClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.notify:
		}
	}
}

func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.signal()
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Dropped returns how many world updates were evicted or refused.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

func (o *Outbox) oldestWorldUpdate() int {
	for i, item := range o.items {
		if _, ok := item.(protocol.ServerWorldUpdate); ok {
			return i
		}
	}
	return -1
}

func (o *Outbox) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}
