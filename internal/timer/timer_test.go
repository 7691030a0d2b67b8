package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownRemaining(t *testing.T) {
	epoch := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := Countdown{Epoch: epoch, Limit: 30 * time.Second}

	if got := c.Remaining(epoch); got != 30*time.Second {
		t.Fatalf("expected full limit, got %v", got)
	}
	if got := c.Seconds(epoch.Add(10500 * time.Millisecond)); got != 20 {
		t.Fatalf("expected 20 displayed seconds, got %d", got)
	}
	if c.Expired(epoch.Add(29 * time.Second)) {
		t.Fatalf("expected not expired before limit")
	}
	if !c.Expired(epoch.Add(30 * time.Second)) {
		t.Fatalf("expected expired at limit")
	}
	if got := c.Remaining(epoch.Add(time.Hour)); got != 0 {
		t.Fatalf("expected clamp to zero, got %v", got)
	}
}

func TestCountdownToleratesClockAhead(t *testing.T) {
	// A client whose clock lags the epoch sees the full limit, never more.
	epoch := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := Countdown{Epoch: epoch, Limit: 10 * time.Second}
	if got := c.Remaining(epoch.Add(-3 * time.Second)); got != 10*time.Second {
		t.Fatalf("expected clamp to limit, got %v", got)
	}
}

func TestZeroEpochNeverExpires(t *testing.T) {
	if (Countdown{Limit: time.Second}).Expired(time.Now()) {
		t.Fatalf("unstamped countdown should not expire")
	}
}

func TestTickerStops(t *testing.T) {
	var calls atomic.Int32
	tk := Every(context.Background(), 5*time.Millisecond, func(time.Time) { calls.Add(1) })
	time.Sleep(30 * time.Millisecond)
	tk.Stop()
	tk.Stop()
	after := calls.Load()
	if after == 0 {
		t.Fatalf("expected ticks before stop")
	}
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Fatalf("ticker kept firing after stop")
	}
}
