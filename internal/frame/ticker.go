package frame

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handle identifies a registered ticker callback. The zero Handle is never issued.
type Handle uint64

// Valid reports whether h was issued by AddTicker.
func (h Handle) Valid() bool { return h != 0 }

// TickFunc is a recurring callback. dt is the time since its previous run
// (or since registration). Returning false unregisters it.
type TickFunc func(dt time.Duration) bool

// Config holds scheduler configuration.
type Config struct {
	Resolution time.Duration    // Loop wake-up period (default: 16ms)
	Now        func() time.Time // Clock (default: time.Now)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Resolution: 16 * time.Millisecond,
		Now:        time.Now,
	}
}

type entry struct {
	id       Handle
	fn       TickFunc
	interval time.Duration
	lastRun  time.Time
	next     time.Time
	removed  bool
}

// Ticker runs registered callbacks at a fixed cadence until they are removed.
type Ticker struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	lastID  Handle
	entries []*entry
	posted  []func()
	wake    chan struct{}
}

// NewTicker creates a new scheduler.
func NewTicker(cfg Config, logger *slog.Logger) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = DefaultConfig().Resolution
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ticker{
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// AddTicker registers fn to run every interval. An interval <= 0 runs it on every step.
func (t *Ticker) AddTicker(fn TickFunc, interval time.Duration) Handle {
	now := t.cfg.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastID++
	t.entries = append(t.entries, &entry{
		id:       t.lastID,
		fn:       fn,
		interval: interval,
		lastRun:  now,
		next:     now.Add(interval),
	})

	t.logger.Debug("ticker added", "handle", t.lastID, "interval", interval)
	return t.lastID
}

// RemoveTicker unregisters a callback. It returns false if h is unknown or
// was already removed.
func (t *Ticker) RemoveTicker(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.id == h {
			e.removed = true
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			t.logger.Debug("ticker removed", "handle", h)
			return true
		}
	}
	return false
}

// Len returns the number of registered callbacks.
func (t *Ticker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Post queues fn to run once on the loop goroutine at the start of the next step.
func (t *Ticker) Post(fn func()) {
	t.mu.Lock()
	t.posted = append(t.posted, fn)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run drives the scheduler on the calling goroutine until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Resolution)
	defer ticker.Stop()

	t.logger.Info("frame scheduler started", "resolution", t.cfg.Resolution)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("frame scheduler stopped")
			return ctx.Err()
		case <-t.wake:
			t.Step(t.cfg.Now())
		case <-ticker.C:
			t.Step(t.cfg.Now())
		}
	}
}

// Step runs queued tasks, then every callback that is due at now.
// Only the loop goroutine (or a test standing in for it) may call Step.
func (t *Ticker) Step(now time.Time) {
	t.mu.Lock()
	posted := t.posted
	t.posted = nil
	t.mu.Unlock()

	for _, fn := range posted {
		fn()
	}

	type due struct {
		e  *entry
		dt time.Duration
	}

	t.mu.Lock()
	var run []due
	for _, e := range t.entries {
		if now.Before(e.next) {
			continue
		}
		run = append(run, due{e: e, dt: now.Sub(e.lastRun)})
		e.lastRun = now
		// Advance from the schedule so wake-up latency does not push
		// the next frame back. After a stall, resync to now.
		e.next = e.next.Add(e.interval)
		if !e.next.After(now) {
			e.next = now.Add(e.interval)
		}
	}
	t.mu.Unlock()

	for _, d := range run {
		t.mu.Lock()
		removed := d.e.removed
		t.mu.Unlock()
		if removed {
			continue
		}

		if !d.e.fn(d.dt) {
			t.RemoveTicker(d.e.id)
		}
	}
}
