package stdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Builder collects connection parameters and lifecycle callbacks.
type Builder struct {
	uri       string
	module    string
	token     string
	logger    *slog.Logger
	executor  Executor
	factory   TransportFactory
	transport TransportConfig
	tables    []Table

	onConnect      func(conn *DbConnection, identity Identity, token string)
	onDisconnect   func(conn *DbConnection, err error)
	onConnectError func(err error)
}

// NewBuilder returns a builder with default transport settings.
func NewBuilder() *Builder {
	return &Builder{
		factory:   NewTransport,
		transport: DefaultTransportConfig(),
	}
}

// WithURI sets the server address (host:port or a ws/http URL).
func (b *Builder) WithURI(uri string) *Builder { b.uri = uri; return b }

// WithModuleName sets the database module to connect to.
func (b *Builder) WithModuleName(name string) *Builder { b.module = name; return b }

// WithToken sets the bearer token. Empty connects anonymously.
func (b *Builder) WithToken(token string) *Builder { b.token = token; return b }

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder { b.logger = logger; return b }

// WithExecutor sets where connect-error and disconnect callbacks run.
// Without one they run on the SDK's network goroutine.
func (b *Builder) WithExecutor(ex Executor) *Builder { b.executor = ex; return b }

// WithTransport replaces the websocket transport factory.
func (b *Builder) WithTransport(factory TransportFactory) *Builder {
	if factory != nil {
		b.factory = factory
	}
	return b
}

// WithTransportConfig overrides timeouts and buffer size. URL and token are
// always derived from the builder.
func (b *Builder) WithTransportConfig(cfg TransportConfig) *Builder { b.transport = cfg; return b }

// WithTables registers row mirrors that server updates are applied to.
func (b *Builder) WithTables(tables ...Table) *Builder {
	b.tables = append(b.tables, tables...)
	return b
}

// OnConnect is called from FrameTick once the server has issued an identity.
func (b *Builder) OnConnect(fn func(conn *DbConnection, identity Identity, token string)) *Builder {
	b.onConnect = fn
	return b
}

// OnDisconnect is called when an active connection ends. err is nil for a
// requested disconnect.
func (b *Builder) OnDisconnect(fn func(conn *DbConnection, err error)) *Builder {
	b.onDisconnect = fn
	return b
}

// OnConnectError is called when the dial fails.
func (b *Builder) OnConnectError(fn func(err error)) *Builder {
	b.onConnectError = fn
	return b
}

// Build validates the parameters and starts connecting in the background.
// The returned connection is inactive until the dial succeeds.
func (b *Builder) Build() (*DbConnection, error) {
	connID := NewConnectionID()
	url, err := BuildURL(b.uri, b.module, connID)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stdb", "module", b.module)

	cfg := b.transport
	cfg.URL = url
	cfg.Token = b.token

	ctx, cancel := context.WithCancel(context.Background())
	c := &DbConnection{
		logger:         logger,
		transport:      b.factory(cfg, logger),
		executor:       b.executor,
		connID:         connID,
		tables:         make(map[string]Table),
		subs:           make(map[uint32]*subscription),
		onConnect:      b.onConnect,
		onDisconnect:   b.onDisconnect,
		onConnectError: b.onConnectError,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, t := range b.tables {
		if err := c.RegisterTable(t); err != nil {
			cancel()
			return nil, err
		}
	}

	go c.dial()

	return c, nil
}

// DbConnection is a live (or pending) connection to one database module.
//
// Row callbacks, OnConnect and subscription callbacks fire from FrameTick, so
// they run on whichever goroutine pumps the connection.
type DbConnection struct {
	logger    *slog.Logger
	transport Transport
	executor  Executor
	connID    ConnectionID

	active atomic.Bool
	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	tables   map[string]Table
	subs     map[uint32]*subscription
	identity Identity
	token    string

	requestID atomic.Uint32

	onConnect      func(conn *DbConnection, identity Identity, token string)
	onDisconnect   func(conn *DbConnection, err error)
	onConnectError func(err error)
	onReducer      []func(ev Event, err error)

	// Stats
	messagesReceived atomic.Int64
	parseErrors      atomic.Int64
	unknownMessages  atomic.Int64
	rowsInserted     atomic.Int64
	rowsUpdated      atomic.Int64
	rowsDeleted      atomic.Int64
}

// IsActive reports whether the websocket is open and Disconnect has not been called.
func (c *DbConnection) IsActive() bool {
	return c.active.Load()
}

// Identity returns the identity issued by the server, zero before OnConnect.
func (c *DbConnection) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Token returns the token issued by the server, empty before OnConnect.
func (c *DbConnection) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// ConnectionID returns the id this connection was opened with.
func (c *DbConnection) ConnectionID() ConnectionID {
	return c.connID
}

// RegisterTable adds a row mirror. Tables registered after the subscription
// is applied only see later transactions.
func (c *DbConnection) RegisterTable(t Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := t.TableName()
	if _, exists := c.tables[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTable, name)
	}
	c.tables[name] = t
	return nil
}

// TableNames returns the registered table names, sorted.
func (c *DbConnection) TableNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns a snapshot of the connection counters.
func (c *DbConnection) Stats() Stats {
	return Stats{
		MessagesReceived: c.messagesReceived.Load(),
		ParseErrors:      c.parseErrors.Load(),
		UnknownMessages:  c.unknownMessages.Load(),
		RowsInserted:     c.rowsInserted.Load(),
		RowsUpdated:      c.rowsUpdated.Load(),
		RowsDeleted:      c.rowsDeleted.Load(),
	}
}

// Disconnect closes the connection. Safe to call more than once and before
// the dial completes.
func (c *DbConnection) Disconnect() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	wasActive := c.active.Swap(false)
	c.cancel()

	err := c.transport.Close()
	if wasActive {
		c.post(func() {
			if c.onDisconnect != nil {
				c.onDisconnect(c, nil)
			}
		})
	}
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// FrameTick drains the messages queued since the last call and fires the
// resulting callbacks. It returns immediately when the connection is inactive.
func (c *DbConnection) FrameTick() {
	if !c.active.Load() {
		return
	}

	msgs := c.transport.Messages()
	for n := len(msgs); n > 0; n-- {
		select {
		case msg := <-msgs:
			c.handleMessage(msg)
		default:
			return
		}
		// A callback may have disconnected us.
		if !c.active.Load() {
			return
		}
	}
}

// CallReducer invokes a server-side reducer with positional arguments and
// returns the request id.
func (c *DbConnection) CallReducer(reducer string, args ...any) (uint32, error) {
	if !c.active.Load() {
		return 0, ErrNotConnected
	}
	encoded, err := encodeArgs(args)
	if err != nil {
		return 0, err
	}

	id := c.requestID.Add(1)
	data, err := encodeClientMessage(clientEnvelope{CallReducer: &CallReducerMsg{
		Reducer:   reducer,
		Args:      encoded,
		RequestID: id,
	}})
	if err != nil {
		return 0, err
	}
	if err := c.transport.Send(data); err != nil {
		return 0, fmt.Errorf("call reducer %s: %w", reducer, err)
	}

	c.logger.Debug("reducer called", "reducer", reducer, "request_id", id)
	return id, nil
}

func (c *DbConnection) dial() {
	if err := c.transport.Connect(c.ctx); err != nil {
		if c.closed.Load() {
			return
		}
		c.logger.Debug("dial failed", "error", err)
		c.post(func() {
			if c.onConnectError != nil {
				c.onConnectError(err)
			}
		})
		return
	}

	c.active.Store(true)
	if c.closed.Load() {
		// Disconnect raced the dial.
		c.active.Store(false)
		c.transport.Close()
		return
	}

	go c.watch()
}

// watch reports a transport failure as a disconnect.
func (c *DbConnection) watch() {
	select {
	case <-c.ctx.Done():
		return
	case err := <-c.transport.Errors():
		if !c.active.CompareAndSwap(true, false) {
			return
		}
		c.logger.Debug("transport failed", "error", err)
		c.post(func() {
			if c.onDisconnect != nil {
				c.onDisconnect(c, err)
			}
		})
	}
}

func (c *DbConnection) post(fn func()) {
	if c.executor == nil {
		fn()
		return
	}
	c.executor.Post(fn)
}

func (c *DbConnection) handleMessage(msg TimestampedMessage) {
	c.messagesReceived.Add(1)

	tag, body, err := extractType(msg.Data)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Warn("failed to decode server message", "error", err)
		return
	}

	switch tag {
	case msgIdentityToken:
		var m IdentityTokenMsg
		if err := unmarshalBody(body, &m); err != nil {
			c.parseErrors.Add(1)
			c.logger.Warn("failed to decode identity token", "error", err)
			return
		}
		c.handleIdentityToken(m)

	case msgInitialSubscription:
		var m InitialSubscriptionMsg
		if err := unmarshalBody(body, &m); err != nil {
			c.parseErrors.Add(1)
			c.logger.Warn("failed to decode initial subscription", "error", err)
			return
		}
		c.handleInitialSubscription(m, msg.ReceivedAt)

	case msgTransactionUpdate:
		var m TransactionUpdateMsg
		if err := unmarshalBody(body, &m); err != nil {
			c.parseErrors.Add(1)
			c.logger.Warn("failed to decode transaction update", "error", err)
			return
		}
		c.handleTransactionUpdate(m, msg.ReceivedAt)

	case msgSubscriptionError:
		var m SubscriptionErrorMsg
		if err := unmarshalBody(body, &m); err != nil {
			c.parseErrors.Add(1)
			c.logger.Warn("failed to decode subscription error", "error", err)
			return
		}
		c.handleSubscriptionError(m)

	default:
		c.unknownMessages.Add(1)
		c.logger.Debug("ignoring server message", "type", tag)
	}
}

func (c *DbConnection) handleIdentityToken(m IdentityTokenMsg) {
	c.mu.Lock()
	c.identity = m.Identity
	c.token = m.Token
	c.mu.Unlock()

	c.logger.Info("identity received", "identity", m.Identity.String())

	if c.onConnect != nil {
		c.onConnect(c, m.Identity, m.Token)
	}
}

func (c *DbConnection) handleInitialSubscription(m InitialSubscriptionMsg, receivedAt time.Time) {
	ev := Event{
		Kind:       EventSubscribeApplied,
		RequestID:  m.RequestID,
		ReceivedAt: receivedAt,
	}

	pending, err := c.applyDatabaseUpdate(ev, m.DatabaseUpdate)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Error("dropped initial subscription",
			"table", updateErrorTable(err),
			"request_id", m.RequestID,
			"error", err,
		)
	}
	for _, fn := range pending {
		fn()
	}

	c.mu.Lock()
	sub := c.subs[m.RequestID]
	if sub != nil {
		sub.applied = true
	}
	c.mu.Unlock()

	if sub != nil && sub.onApplied != nil {
		sub.onApplied(ev)
	}
}

func (c *DbConnection) handleTransactionUpdate(m TransactionUpdateMsg, receivedAt time.Time) {
	ev := Event{
		Kind:           EventTransaction,
		RequestID:      m.ReducerCall.RequestID,
		Reducer:        m.ReducerCall.ReducerName,
		CallerIdentity: m.CallerIdentity,
		ReceivedAt:     receivedAt,
	}

	if m.Status.Failed != nil {
		c.logger.Warn("reducer failed",
			"reducer", m.ReducerCall.ReducerName,
			"request_id", m.ReducerCall.RequestID,
			"error", *m.Status.Failed,
		)
		c.reducerResult(ev, &ReducerError{Reducer: ev.Reducer, Message: *m.Status.Failed})
		return
	}
	if m.Status.Committed == nil {
		return
	}

	pending, err := c.applyDatabaseUpdate(ev, *m.Status.Committed)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Error("dropped transaction",
			"table", updateErrorTable(err),
			"reducer", ev.Reducer,
			"request_id", ev.RequestID,
			"error", err,
		)
	}
	for _, fn := range pending {
		fn()
	}
	c.reducerResult(ev, nil)
}

// OnReducerResult registers fn for the outcome of every reducer call the
// server reports, ours or another client's. err is a *ReducerError when the
// reducer failed. fn runs from FrameTick after the row callbacks.
func (c *DbConnection) OnReducerResult(fn func(ev Event, err error)) {
	c.mu.Lock()
	c.onReducer = append(c.onReducer, fn)
	c.mu.Unlock()
}

func (c *DbConnection) reducerResult(ev Event, err error) {
	c.mu.Lock()
	fns := append(([]func(Event, error))(nil), c.onReducer...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev, err)
	}
}

func (c *DbConnection) handleSubscriptionError(m SubscriptionErrorMsg) {
	err := errors.New(m.Error)

	var sub *subscription
	if m.RequestID != nil {
		c.mu.Lock()
		sub = c.subs[*m.RequestID]
		delete(c.subs, *m.RequestID)
		c.mu.Unlock()
	}

	if sub != nil && sub.onError != nil {
		sub.onError(err)
		return
	}
	c.logger.Warn("subscription error", "error", err)
}

// tableUpdateError names the table whose rows could not be decoded.
type tableUpdateError struct {
	table string
	err   error
}

func (e *tableUpdateError) Error() string { return e.err.Error() }
func (e *tableUpdateError) Unwrap() error { return e.err }

// applyDatabaseUpdate decodes every affected table before mutating any of
// them, so a transaction is applied whole or not at all. It returns the
// callbacks to fire once all tables are updated.
func (c *DbConnection) applyDatabaseUpdate(ev Event, du DatabaseUpdate) ([]func(), error) {
	commits := make([]func() ([]func(), rowCounts), 0, len(du.Tables))

	for _, tu := range du.Tables {
		c.mu.Lock()
		t, ok := c.tables[tu.TableName]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("update for unregistered table", "table", tu.TableName)
			continue
		}

		commit, err := t.stage(ev, tu.Updates)
		if err != nil {
			return nil, &tableUpdateError{table: tu.TableName, err: err}
		}
		commits = append(commits, commit)
	}

	var pending []func()
	for _, commit := range commits {
		fns, counts := commit()
		pending = append(pending, fns...)
		c.rowsInserted.Add(counts.inserted)
		c.rowsUpdated.Add(counts.updated)
		c.rowsDeleted.Add(counts.deleted)
	}
	return pending, nil
}

func updateErrorTable(err error) string {
	var te *tableUpdateError
	if errors.As(err, &te) {
		return te.table
	}
	return ""
}
