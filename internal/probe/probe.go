package probe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/mmorpg-client/internal/api"
)

// Checker is the subset of *api.Client the prober calls.
type Checker interface {
	Ping(ctx context.Context) (time.Duration, error)
	DatabaseInfo(ctx context.Context, name string) (*api.DatabaseInfo, error)
}

// Config holds prober configuration.
type Config struct {
	Interval time.Duration // Probe interval (default: 30s)
	Timeout  time.Duration // Per-request timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Result is the outcome of one probe cycle.
type Result struct {
	CheckedAt        time.Time `json:"checked_at"`
	Reachable        bool      `json:"reachable"`
	RTTMillis        int64     `json:"rtt_ms"`
	ModuleFound      bool      `json:"module_found"`
	DatabaseIdentity string    `json:"database_identity,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Healthy reports whether the service answered and the module exists.
func (r Result) Healthy() bool {
	return r.Reachable && r.ModuleFound
}

// Prober checks the service on an interval.
type Prober struct {
	cfg    Config
	client Checker
	module string
	logger *slog.Logger

	last   atomic.Pointer[Result]
	cycles atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a prober for module.
func New(cfg Config, client Checker, module string, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Prober{
		cfg:    cfg,
		client: client,
		module: module,
		logger: logger.With("component", "probe"),
	}
}

// Start begins probing. The first probe runs immediately.
func (p *Prober) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("service probe started",
		"interval", p.cfg.Interval,
		"module", p.module,
	)
	return nil
}

// Stop gracefully shuts down the prober.
func (p *Prober) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("service probe stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the most recent result. ok is false before the first probe.
// Safe from any goroutine.
func (p *Prober) Last() (r Result, ok bool) {
	if last := p.last.Load(); last != nil {
		return *last, true
	}
	return Result{}, false
}

// Cycles returns the number of completed probes.
func (p *Prober) Cycles() int64 {
	return p.cycles.Load()
}

func (p *Prober) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.probe(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probe(p.ctx)
		}
	}
}

// probe runs the ping and the module lookup concurrently and publishes the
// combined result.
func (p *Prober) probe(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		rtt     time.Duration
		pingErr error
		info    *api.DatabaseInfo
		infoErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rtt, pingErr = p.client.Ping(ctx)
	}()
	go func() {
		defer wg.Done()
		info, infoErr = p.client.DatabaseInfo(ctx, p.module)
	}()
	wg.Wait()

	r := Result{
		CheckedAt: time.Now(),
		Reachable: pingErr == nil,
		RTTMillis: rtt.Milliseconds(),
	}
	if infoErr == nil && info != nil {
		r.ModuleFound = true
		r.DatabaseIdentity = info.DatabaseIdentity
	}
	if err := errors.Join(pingErr, infoErr); err != nil {
		r.Error = err.Error()
	}

	prev, hadPrev := p.Last()
	p.last.Store(&r)
	p.cycles.Add(1)

	switch {
	case !r.Healthy() && (!hadPrev || prev.Healthy()):
		p.logger.Warn("service probe failing", "module", p.module, "error", r.Error)
	case r.Healthy() && hadPrev && !prev.Healthy():
		p.logger.Info("service probe recovered", "module", p.module, "rtt_ms", r.RTTMillis)
	default:
		p.logger.Debug("service probe complete",
			"reachable", r.Reachable,
			"module_found", r.ModuleFound,
			"rtt_ms", r.RTTMillis,
		)
	}
	return r
}
