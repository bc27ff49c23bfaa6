package inflight

import (
	"context"
	"testing"
	"time"
)

func TestCounterWaitForZero(t *testing.T) {
	var c Counter
	if !c.WaitForZero(context.Background()) {
		t.Fatalf("idle counter should report zero")
	}
	c.Inc()
	c.Inc()
	if c.Load() != 2 {
		t.Fatalf("expected 2 got %d", c.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.WaitForZero(ctx) {
		t.Fatalf("wait returned true with requests in flight")
	}

	done := make(chan bool, 1)
	go func() { done <- c.WaitForZero(context.Background()) }()
	c.Dec()
	c.Dec()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("expected zero")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter not released")
	}
	c.Dec()
	if c.Load() != 0 {
		t.Fatalf("count went negative: %d", c.Load())
	}
}
