package session

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rickgao/mmorpg-client/internal/bindings"
	"github.com/rickgao/mmorpg-client/internal/config"
	"github.com/rickgao/mmorpg-client/internal/credentials"
	"github.com/rickgao/mmorpg-client/internal/frame"
	"github.com/rickgao/mmorpg-client/internal/stdb"
)

// Manager connects to the database module and mirrors the local player.
type Manager struct {
	sched     Scheduler
	logger    *slog.Logger
	tokens    TokenStore
	transport stdb.TransportFactory
	journal   Journal
	now       func() time.Time

	cfg         config.ConnectionConfig
	initialized bool
	tickHandle  frame.Handle

	conn     *bindings.DbConnection
	state    State
	connects int
	lastErr  error

	identity      stdb.Identity
	hasIdentity   bool
	localPlayerID uint32
	hasPlayer     bool
	displayName   string
	spawnPending  map[uint32]bool

	nameListeners map[int]func(name string)
	nextListener  int
	onSpawnNeeded SpawnFunc

	status atomic.Pointer[Status]
}

// New creates a manager that runs on sched.
func New(sched Scheduler, opts ...Option) *Manager {
	m := &Manager{
		sched:         sched,
		logger:        slog.Default(),
		now:           time.Now,
		spawnPending:  make(map[uint32]bool),
		nameListeners: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tokens == nil {
		m.tokens = credentials.NewStore("")
	}
	m.logger = m.logger.With("component", "session")
	m.publish()
	return m
}

// Initialize prepares the token store, starts a connection when AutoStart is
// set and registers the per-frame callback.
func (m *Manager) Initialize(cfg config.ConnectionConfig) {
	if m.initialized {
		m.logger.Warn("manager already initialized")
		return
	}
	m.initialized = true
	m.cfg = cfg

	m.tokens.Init(cfg.TokenFilePath)

	if cfg.AutoStart {
		m.StartConnection()
	}

	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = config.DefaultFrameInterval
	}
	m.tickHandle = m.sched.AddTicker(func(dt time.Duration) bool {
		m.Tick(dt)
		return true
	}, interval)

	m.logger.Info("manager initialized",
		"server_uri", cfg.ServerURI,
		"module", cfg.ModuleName,
		"auto_start", cfg.AutoStart,
		"frame_interval", interval,
	)
}

// Deinitialize unregisters the per-frame callback and disconnects.
func (m *Manager) Deinitialize() {
	if m.tickHandle.Valid() {
		m.sched.RemoveTicker(m.tickHandle)
		m.tickHandle = 0
	}
	m.Disconnect()
	m.initialized = false
	m.logger.Info("manager deinitialized")
}

// StartConnection builds a new connection unless one is already active.
// The outcome arrives later through the connect callbacks.
func (m *Manager) StartConnection() {
	if m.conn != nil && m.conn.IsActive() {
		m.logger.Debug("connection already active")
		return
	}
	if m.conn != nil {
		// Pending or dropped handle.
		m.conn.Disconnect()
		m.conn = nil
	}

	token, err := m.tokens.LoadToken()
	if err != nil {
		m.logger.Warn("failed to load token, connecting anonymously", "error", err)
		token = ""
	}
	if token != "" {
		if claims, err := credentials.Inspect(token); err == nil && claims.Expired(m.now()) {
			m.logger.Warn("cached token has expired", "expires_at", claims.ExpiresAt)
		}
	}

	var conn *bindings.DbConnection
	builder := bindings.NewBuilder().
		WithURI(m.cfg.ServerURI).
		WithModuleName(m.cfg.ModuleName).
		WithToken(token).
		WithLogger(m.logger).
		WithExecutor(m.sched).
		WithTransportConfig(m.transportConfig()).
		OnConnect(m.handleConnect).
		OnDisconnect(m.handleDisconnect).
		OnConnectError(func(err error) { m.handleConnectError(conn, err) })
	if m.transport != nil {
		builder.WithTransport(m.transport)
	}

	conn, err = builder.Build()
	if err != nil {
		m.logger.Error("failed to build connection", "error", err)
		m.lastErr = err
		m.publish()
		return
	}

	m.conn = conn
	m.state = StateConnecting
	m.connects++
	m.resetLocalState()
	m.registerRowCallbacks(conn)

	m.logger.Info("connecting",
		"server_uri", m.cfg.ServerURI,
		"module", m.cfg.ModuleName,
		"anonymous", token == "",
	)
	m.publish()
}

// Disconnect drops the connection handle, if any.
func (m *Manager) Disconnect() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Disconnect(); err != nil {
		m.logger.Warn("disconnect failed", "error", err)
	}
	m.conn = nil
	m.state = StateDisconnected
	m.publish()
}

// IsConnected reports whether an active connection exists.
func (m *Manager) IsConnected() bool {
	return m.conn != nil && m.conn.IsActive()
}

// Tick pumps the connection. It does nothing while disconnected.
func (m *Manager) Tick(dt time.Duration) {
	if !m.IsConnected() {
		return
	}
	m.conn.FrameTick()
	m.publish()
}

// Conn returns the current connection handle, nil when disconnected.
func (m *Manager) Conn() *bindings.DbConnection {
	return m.conn
}

// LocalIdentity returns the identity issued on connect.
func (m *Manager) LocalIdentity() (stdb.Identity, bool) {
	return m.identity, m.hasIdentity
}

// DisplayName returns the cached display name of the local player.
func (m *Manager) DisplayName() string {
	return m.displayName
}

// OnDisplayNameChanged registers fn for display name changes and returns a
// func that unregisters it.
func (m *Manager) OnDisplayNameChanged(fn func(name string)) (unsubscribe func()) {
	id := m.nextListener
	m.nextListener++
	m.nameListeners[id] = fn
	return func() { delete(m.nameListeners, id) }
}

// OnSpawnNeeded registers the hook called for local characters that need a pawn.
func (m *Manager) OnSpawnNeeded(fn SpawnFunc) {
	m.onSpawnNeeded = fn
}

// Status returns the last published snapshot. Safe from any goroutine.
func (m *Manager) Status() Status {
	return *m.status.Load()
}

func (m *Manager) transportConfig() stdb.TransportConfig {
	cfg := stdb.DefaultTransportConfig()
	if m.cfg.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = m.cfg.HandshakeTimeout
	}
	if m.cfg.WriteTimeout > 0 {
		cfg.WriteTimeout = m.cfg.WriteTimeout
	}
	if m.cfg.MessageBuffer > 0 {
		cfg.BufferSize = m.cfg.MessageBuffer
	}
	return cfg
}

func (m *Manager) resetLocalState() {
	m.identity = stdb.Identity{}
	m.hasIdentity = false
	m.localPlayerID = 0
	m.hasPlayer = false
	m.spawnPending = make(map[uint32]bool)
	m.setDisplayName("")
}

func (m *Manager) isCurrent(conn *bindings.DbConnection) bool {
	return conn != nil && conn == m.conn
}

func (m *Manager) setDisplayName(name string) {
	name = normalizeName(name)
	if name == m.displayName {
		return
	}
	m.displayName = name
	m.logger.Info("display name changed", "display_name", name)

	ids := make([]int, 0, len(m.nameListeners))
	for id := range m.nameListeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := m.nameListeners[id]; ok {
			fn(name)
		}
	}
}

func (m *Manager) publish() {
	s := &Status{
		State:       m.state.String(),
		Connected:   m.IsConnected(),
		DisplayName: m.displayName,
		Connects:    m.connects,
		NeedsSpawn:  []uint32{},
		UpdatedAt:   m.now(),
	}
	if m.hasIdentity {
		s.Identity = m.identity.String()
	}
	if m.hasPlayer {
		id := m.localPlayerID
		s.PlayerID = &id
	}
	for id := range m.spawnPending {
		s.NeedsSpawn = append(s.NeedsSpawn, id)
	}
	sort.Slice(s.NeedsSpawn, func(i, j int) bool { return s.NeedsSpawn[i] < s.NeedsSpawn[j] })
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	if m.conn != nil {
		s.Stats = m.conn.Stats()
	}
	m.status.Store(s)
}
