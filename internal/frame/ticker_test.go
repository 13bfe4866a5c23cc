package frame

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newTestTicker() (*Ticker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return NewTicker(Config{Resolution: time.Millisecond, Now: clock.Now}, nil), clock
}

func TestTicker_RunsAtInterval(t *testing.T) {
	tk, clock := newTestTicker()

	var calls []time.Duration
	tk.AddTicker(func(dt time.Duration) bool {
		calls = append(calls, dt)
		return true
	}, 16*time.Millisecond)

	tk.Step(clock.Advance(10 * time.Millisecond)) // not due
	tk.Step(clock.Advance(6 * time.Millisecond))  // due at 16ms
	tk.Step(clock.Advance(20 * time.Millisecond)) // due, dt=20ms

	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0] != 16*time.Millisecond {
		t.Errorf("first dt = %v, want 16ms", calls[0])
	}
	if calls[1] != 20*time.Millisecond {
		t.Errorf("second dt = %v, want 20ms", calls[1])
	}
}

func TestTicker_JitteredWakeupsKeepEveryFrame(t *testing.T) {
	tk, clock := newTestTicker()
	start := clock.now

	calls := 0
	tk.AddTicker(func(time.Duration) bool {
		calls++
		return true
	}, 16*time.Millisecond)

	// Each wake-up is late by 300µs or 100µs in turn.
	for i := 1; i <= 60; i++ {
		late := 300 * time.Microsecond
		if i%2 == 0 {
			late = 100 * time.Microsecond
		}
		clock.now = start.Add(time.Duration(i)*16*time.Millisecond + late)
		tk.Step(clock.now)
	}

	if calls != 60 {
		t.Errorf("calls = %d, want 60", calls)
	}
}

func TestTicker_ResyncsAfterStall(t *testing.T) {
	tk, clock := newTestTicker()

	calls := 0
	tk.AddTicker(func(time.Duration) bool {
		calls++
		return true
	}, 16*time.Millisecond)

	tk.Step(clock.Advance(100 * time.Millisecond)) // stalled, runs once
	tk.Step(clock.Advance(time.Millisecond))       // no catch-up burst
	tk.Step(clock.Advance(15 * time.Millisecond))  // next frame

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestTicker_ReturnFalseUnregisters(t *testing.T) {
	tk, clock := newTestTicker()

	count := 0
	tk.AddTicker(func(time.Duration) bool {
		count++
		return false
	}, 0)

	tk.Step(clock.Advance(time.Millisecond))
	tk.Step(clock.Advance(time.Millisecond))

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if tk.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tk.Len())
	}
}

func TestTicker_RemoveTicker(t *testing.T) {
	tk, clock := newTestTicker()

	count := 0
	h := tk.AddTicker(func(time.Duration) bool {
		count++
		return true
	}, 0)

	if !h.Valid() {
		t.Fatal("AddTicker returned invalid handle")
	}

	tk.Step(clock.Advance(time.Millisecond))
	if !tk.RemoveTicker(h) {
		t.Error("RemoveTicker() = false, want true")
	}
	if tk.RemoveTicker(h) {
		t.Error("second RemoveTicker() = true, want false")
	}
	tk.Step(clock.Advance(time.Millisecond))

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestTicker_RemoveDuringStep(t *testing.T) {
	tk, clock := newTestTicker()

	var second Handle
	secondCalls := 0
	tk.AddTicker(func(time.Duration) bool {
		tk.RemoveTicker(second)
		return true
	}, 0)
	second = tk.AddTicker(func(time.Duration) bool {
		secondCalls++
		return true
	}, 0)

	tk.Step(clock.Advance(time.Millisecond))

	if secondCalls != 0 {
		t.Errorf("removed ticker ran %d times, want 0", secondCalls)
	}
}

func TestTicker_PostRunsBeforeTickers(t *testing.T) {
	tk, clock := newTestTicker()

	var order []string
	tk.AddTicker(func(time.Duration) bool {
		order = append(order, "tick")
		return true
	}, 0)
	tk.Post(func() { order = append(order, "posted") })

	tk.Step(clock.Advance(time.Millisecond))

	if len(order) != 2 || order[0] != "posted" || order[1] != "tick" {
		t.Errorf("order = %v, want [posted tick]", order)
	}
}

func TestTicker_Run(t *testing.T) {
	tk := NewTicker(Config{Resolution: time.Millisecond}, nil)

	var ticks atomic.Int32
	tk.AddTicker(func(time.Duration) bool {
		ticks.Add(1)
		return true
	}, time.Millisecond)

	done := make(chan struct{})
	tk.Post(func() { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tk.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted task did not run")
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-errCh; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if ticks.Load() == 0 {
		t.Error("ticker callback never ran")
	}
}
