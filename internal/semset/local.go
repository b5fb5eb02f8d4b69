package semset

import (
	"context"
	"sync"
)

// Local is an in-process set with the same contract as SysV. It backs
// anonymous regions and unit tests.
type Local struct {
	counters [Count]counter
}

type counter struct {
	mu      sync.Mutex
	val     int
	waiting int
	changed chan struct{}
}

// NewLocal returns a set holding the protocol's initial values.
func NewLocal() *Local {
	l := &Local{}
	for i := range l.counters {
		l.counters[i].val = int(initial[i])
		l.counters[i].changed = make(chan struct{})
	}
	return l
}

// Acquire takes one unit of idx, blocking until one is available or ctx ends.
func (l *Local) Acquire(ctx context.Context, idx Index) error {
	if err := checkIndex(idx); err != nil {
		return err
	}
	c := &l.counters[idx]
	for {
		c.mu.Lock()
		if c.val > 0 {
			c.val--
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.waiting++
		c.mu.Unlock()

		select {
		case <-ch:
			c.mu.Lock()
			c.waiting--
			c.mu.Unlock()
		case <-ctx.Done():
			c.mu.Lock()
			c.waiting--
			c.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Release adds n units to idx and wakes every waiter to re-check.
func (l *Local) Release(idx Index, n int) error {
	if err := checkIndex(idx); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	c := &l.counters[idx]
	c.mu.Lock()
	c.val += n
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
	return nil
}

// Value returns the current count of idx.
func (l *Local) Value(idx Index) (int, error) {
	if err := checkIndex(idx); err != nil {
		return 0, err
	}
	c := &l.counters[idx]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, nil
}

// Waiting returns how many goroutines are blocked acquiring idx.
func (l *Local) Waiting(idx Index) (int, error) {
	if err := checkIndex(idx); err != nil {
		return 0, err
	}
	c := &l.counters[idx]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting, nil
}

// Destroy is a no-op; the set dies with the process.
func (l *Local) Destroy() error {
	return nil
}
