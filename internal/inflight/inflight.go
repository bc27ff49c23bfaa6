package inflight

import (
	"context"
	"sync"
)

// Counter tracks forwarded requests that shutdown should wait for.
// The zero value is ready to use.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

// Inc records a request entering flight.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.ensureLocked()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	c.mu.Unlock()
}

// Dec records a request leaving flight. Extra calls at zero are ignored.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.ensureLocked()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or ctx is done.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	c.ensureLocked()
	ch := c.zeroCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// ensureLocked lazily creates the zero channel, closed while the count is zero.
func (c *Counter) ensureLocked() {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
}
