package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/mmorpg-client/internal/api"
)

type fakeChecker struct {
	pingErr error
	infoErr error
	pings   atomic.Int32
}

func (f *fakeChecker) Ping(ctx context.Context) (time.Duration, error) {
	f.pings.Add(1)
	if f.pingErr != nil {
		return 0, f.pingErr
	}
	return 3 * time.Millisecond, nil
}

func (f *fakeChecker) DatabaseInfo(ctx context.Context, name string) (*api.DatabaseInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &api.DatabaseInfo{DatabaseIdentity: "c200" + name}, nil
}

func TestProber_Probe(t *testing.T) {
	tests := []struct {
		name        string
		checker     *fakeChecker
		wantHealthy bool
		wantReach   bool
		wantModule  bool
	}{
		{name: "healthy", checker: &fakeChecker{}, wantHealthy: true, wantReach: true, wantModule: true},
		{name: "module missing", checker: &fakeChecker{infoErr: errors.New("404")}, wantReach: true},
		{name: "down", checker: &fakeChecker{pingErr: errors.New("refused"), infoErr: errors.New("refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{Interval: time.Hour, Timeout: time.Second}, tt.checker, "mmorpg", nil)
			if _, ok := p.Last(); ok {
				t.Fatal("Last() ok before the first probe")
			}

			r := p.probe(context.Background())
			if r.Healthy() != tt.wantHealthy {
				t.Errorf("Healthy() = %v, want %v", r.Healthy(), tt.wantHealthy)
			}
			if r.Reachable != tt.wantReach {
				t.Errorf("Reachable = %v, want %v", r.Reachable, tt.wantReach)
			}
			if r.ModuleFound != tt.wantModule {
				t.Errorf("ModuleFound = %v, want %v", r.ModuleFound, tt.wantModule)
			}
			if tt.wantHealthy && r.Error != "" {
				t.Errorf("Error = %q, want empty", r.Error)
			}
			if !tt.wantHealthy && r.Error == "" {
				t.Error("Error is empty for a failing probe")
			}

			last, ok := p.Last()
			if !ok || last.CheckedAt != r.CheckedAt {
				t.Errorf("Last() = %+v, %v; want the probe result", last, ok)
			}
			if p.Cycles() != 1 {
				t.Errorf("Cycles() = %d, want 1", p.Cycles())
			}
		})
	}
}

func TestProber_DefaultConfig(t *testing.T) {
	p := New(Config{}, &fakeChecker{}, "mmorpg", nil)
	if p.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want %+v", p.cfg, DefaultConfig())
	}
}

func TestProber_StartStop(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/v1/database/mmorpg" {
			w.Write([]byte(`{"database_identity":"c200aa"}`))
		}
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithTimeout(5*time.Second))
	p := New(Config{Interval: 20 * time.Millisecond, Timeout: time.Second}, client, "mmorpg", nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Cycles() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if p.Cycles() < 2 {
		t.Fatalf("Cycles() = %d, want >= 2", p.Cycles())
	}
	r, ok := p.Last()
	if !ok || !r.Healthy() {
		t.Errorf("Last() = %+v, %v; want healthy", r, ok)
	}
	if r.DatabaseIdentity != "c200aa" {
		t.Errorf("DatabaseIdentity = %q", r.DatabaseIdentity)
	}

	stopped := hits.Load()
	time.Sleep(50 * time.Millisecond)
	if hits.Load() != stopped {
		t.Error("prober kept polling after Stop")
	}
}
