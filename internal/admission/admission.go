// Package admission bounds the number of concurrently running jobs. Each job
// holds one slot for its whole lifetime; the semaphore is the only mutable
// state shared across jobs.
package admission

import (
	"context"
	"fmt"
)

// Semaphore is a bounded counting semaphore with context-aware acquisition.
// Fairness is best-effort: waiters are woken in runtime order, not FIFO.
type Semaphore struct {
	slots chan struct{}
}

// New creates a semaphore admitting at most limit concurrent holders.
func New(limit int) *Semaphore {
	if limit <= 0 {
		limit = 1
	}
	return &Semaphore{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or ctx is done. The caller's overall
// job deadline bounds the wait; an expired wait is a timeout, not a queue.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("admission wait: %w", ctx.Err())
	}
}

// TryAcquire takes a slot without blocking.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot. Panics on release without a matching acquire, which
// is always a programming error.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
		panic("admission: release without acquire")
	}
}

// InUse returns the number of currently held slots.
func (s *Semaphore) InUse() int { return len(s.slots) }

// Limit returns the configured ceiling.
func (s *Semaphore) Limit() int { return cap(s.slots) }
