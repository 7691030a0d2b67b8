// Package timer renders one shared epoch into a local countdown. Only the
// epoch is shared between clients; each client evaluates remaining time
// against its own clock.
package timer

import (
	"context"
	"sync"
	"time"
)

// Countdown counts down Limit from Epoch.
type Countdown struct {
	Epoch time.Time
	Limit time.Duration
}

// Remaining returns the time left at now, clamped to [0, Limit].
func (c Countdown) Remaining(now time.Time) time.Duration {
	left := c.Limit - now.Sub(c.Epoch)
	if left < 0 {
		return 0
	}
	if left > c.Limit {
		return c.Limit
	}
	return left
}

// Seconds returns the remaining time in whole displayed seconds, rounded up so
// the display reads 0 only once the countdown has expired.
func (c Countdown) Seconds(now time.Time) int {
	left := c.Remaining(now)
	return int((left + time.Second - 1) / time.Second)
}

// Expired reports whether the limit has elapsed at now.
func (c Countdown) Expired(now time.Time) bool {
	return !c.Epoch.IsZero() && now.Sub(c.Epoch) >= c.Limit
}

// Ticker invokes a callback on a fixed interval until stopped.
type Ticker struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts calling fn every interval until ctx ends or Stop is called.
func Every(ctx context.Context, interval time.Duration, fn func(now time.Time)) *Ticker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticker{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				fn(now)
			}
		}
	}()
	return t
}

// Stop cancels the ticker and waits for an in-flight callback to return.
func (t *Ticker) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}
