package reconnect

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Schedule defines the backoff durations for successive reconnect attempts
// when a Policy has no fixed delay.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the scheduled backoff for the given attempt.
// Attempts beyond the length of the schedule default to 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

var (
	// ErrGaveUp is returned by Run once MaxAttempts consecutive attempts failed.
	ErrGaveUp = errors.New("reconnect: attempts exhausted")
	// ErrConnectionLost marks an attempt that connected and later dropped.
	// Run resets its attempt counter when fn returns an error wrapping it.
	ErrConnectionLost = errors.New("reconnect: connection lost")
)

// Policy drives reconnection: a delay between attempts and an attempt cap.
type Policy struct {
	// Delay is the fixed wait between attempts. Zero uses Schedule.
	Delay time.Duration
	// MaxAttempts caps consecutive failed attempts. Zero or negative means unlimited.
	MaxAttempts int
	// After returns a channel that fires after d. Nil uses time.After.
	After func(d time.Duration) <-chan time.Time
}

// Next returns the wait before the attempt following the given failed one.
func (p Policy) Next(failed int) time.Duration {
	if p.Delay > 0 {
		return p.Delay
	}
	return Delay(failed)
}

// Exhausted reports whether failed consecutive attempts reach the cap.
func (p Policy) Exhausted(failed int) bool {
	return p.MaxAttempts > 0 && failed >= p.MaxAttempts
}

func (p Policy) after(d time.Duration) <-chan time.Time {
	if p.After != nil {
		return p.After(d)
	}
	return time.After(d)
}

// Run calls fn until it returns nil, ctx is done, or the attempt cap is hit.
// fn receives the zero-based count of consecutive failures so far.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	failed := 0
	for {
		err := fn(ctx, failed)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrConnectionLost) {
			failed = 0
		} else {
			failed++
		}
		if p.Exhausted(failed) {
			return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, failed, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.after(p.Next(failed - 1)):
		}
	}
}
