package boundary

import (
	"context"
	"sync"
)

// Pending is a reserved queue slot whose value arrives later, typically
// from an asynchronous template capture.
type Pending[T any] struct {
	Seq   int64
	done  chan struct{}
	once  sync.Once
	value T
}

// Resolve supplies the slot's value. Only the first call has any effect.
// Safe to call from any goroutine.
func (p *Pending[T]) Resolve(v T) {
	p.once.Do(func() {
		p.value = v
		close(p.done)
	})
}

// Done is closed once the slot is resolved.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Queue is a FIFO of pending insertions for one script.
//
// Slots are reserved with Enqueue in commit order and may resolve in any
// order; Run applies them strictly in reservation order, waiting on each
// unresolved head before looking at the next.
//
// The queue is unbounded so that the synchronous classifier never blocks
// on enqueue. It uses a channel for signaling to enable context-aware
// waiting in Run.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []*Pending[T]
	seq    int64
	closed bool
	signal chan struct{} // Signals slot availability (buffered, size 1)
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]*Pending[T], 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue reserves the next slot. Returns (nil, false) if the queue is
// closed. Thread-safe: may be called from any goroutine.
func (q *Queue[T]) Enqueue() (*Pending[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false
	}
	q.seq++
	p := &Pending[T]{Seq: q.seq, done: make(chan struct{})}
	q.items = append(q.items, p)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return p, true
}

// EnqueueResolved reserves a slot and resolves it immediately.
func (q *Queue[T]) EnqueueResolved(v T) (*Pending[T], bool) {
	p, ok := q.Enqueue()
	if ok {
		p.Resolve(v)
	}
	return p, ok
}

// next pops the head slot. closed reports that the queue is closed and
// drained.
func (q *Queue[T]) next() (p *Pending[T], closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, q.closed
	}
	p = q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, false
}

// Len returns the number of slots not yet taken by Run.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new slots. Slots already reserved are still
// applied by Run, which returns once they are drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Run is the single consumer. It applies each slot's value in reservation
// order and returns nil after Close once every slot has been applied, or
// ctx.Err() if the context ends first.
func (q *Queue[T]) Run(ctx context.Context, apply func(seq int64, v T)) error {
	for {
		p, closed := q.next()
		if closed {
			return nil
		}
		if p == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.signal:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
		}
		apply(p.Seq, p.value)
	}
}
