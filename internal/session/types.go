package session

import (
	"log/slog"
	"time"

	"github.com/rickgao/mmorpg-client/internal/bindings"
	"github.com/rickgao/mmorpg-client/internal/frame"
	"github.com/rickgao/mmorpg-client/internal/journal"
	"github.com/rickgao/mmorpg-client/internal/stdb"
)

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Scheduler runs the per-frame callback and posted work on one goroutine.
// *frame.Ticker implements it.
type Scheduler interface {
	AddTicker(fn frame.TickFunc, interval time.Duration) frame.Handle
	RemoveTicker(h frame.Handle) bool
	Post(fn func())
}

// TokenStore persists the auth token between runs. *credentials.Store
// implements it.
type TokenStore interface {
	Init(path string)
	LoadToken() (string, error)
	SaveToken(token string) error
}

// Journal receives every observed row change. *journal.Writer implements it.
type Journal interface {
	Record(ev journal.Event) bool
}

// Status is a point-in-time view of the manager, safe to share across goroutines.
type Status struct {
	State       string     `json:"state"`
	Connected   bool       `json:"connected"`
	Identity    string     `json:"identity,omitempty"`
	PlayerID    *uint32    `json:"player_id,omitempty"`
	DisplayName string     `json:"display_name"`
	NeedsSpawn  []uint32   `json:"needs_spawn"`
	Connects    int        `json:"connects"`
	LastError   string     `json:"last_error,omitempty"`
	Stats       stdb.Stats `json:"stats"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTokenStore replaces the file-backed token store.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) { m.tokens = store }
}

// WithTransport replaces the websocket transport, for tests.
func WithTransport(factory stdb.TransportFactory) Option {
	return func(m *Manager) { m.transport = factory }
}

// WithJournal records row changes to j.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithClock sets the clock used for journal and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// SpawnFunc is called once for each local character flagged needs_spawn.
type SpawnFunc func(pc bindings.PlayerCharacter, pawnClass string)
