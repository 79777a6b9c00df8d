package engine

import (
	"context"
	"sync"
)

// PullQueue limits how many pulls run against the engine at once. Waiters
// are served in arrival order.
type PullQueue struct {
	maxConcurrent int
	running       int
	pending       []*queuedPull
	mu            sync.Mutex
}

type queuedPull struct {
	ready chan struct{}
}

// NewPullQueue creates a queue allowing maxConcurrent simultaneous pulls.
func NewPullQueue(maxConcurrent int) *PullQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &PullQueue{
		maxConcurrent: maxConcurrent,
		pending:       make([]*queuedPull, 0),
	}
}

// Acquire blocks until a pull slot is free or ctx is done. onQueued, if not
// nil, is called with the 1-based queue position when the caller has to wait.
// The returned release func must be called exactly once.
func (q *PullQueue) Acquire(ctx context.Context, onQueued func(position int)) (func(), error) {
	q.mu.Lock()
	if q.running < q.maxConcurrent {
		q.running++
		q.mu.Unlock()
		return q.releaseOnce(), nil
	}

	p := &queuedPull{ready: make(chan struct{})}
	q.pending = append(q.pending, p)
	position := len(q.pending)
	q.mu.Unlock()

	if onQueued != nil {
		onQueued(position)
	}

	select {
	case <-p.ready:
		return q.releaseOnce(), nil
	case <-ctx.Done():
		q.mu.Lock()
		if q.removePending(p) {
			q.mu.Unlock()
			return nil, ctx.Err()
		}
		q.mu.Unlock()
		// The slot was handed over while we were giving up.
		q.release()
		return nil, ctx.Err()
	}
}

// Len returns the number of pulls waiting for a slot.
func (q *PullQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of pulls holding a slot.
func (q *PullQueue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *PullQueue) releaseOnce() func() {
	var once sync.Once
	return func() { once.Do(q.release) }
}

// release hands the slot to the next waiter, or frees it.
func (q *PullQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) > 0 {
		next := q.pending[0]
		q.pending = q.pending[1:]
		close(next.ready)
		return
	}
	q.running--
}

func (q *PullQueue) removePending(p *queuedPull) bool {
	for i, candidate := range q.pending {
		if candidate == p {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}
