package bindings

import (
	"log/slog"

	"github.com/rickgao/mmorpg-client/internal/stdb"
)

// DbConnection is a stdb connection with the module's tables and reducers attached.
type DbConnection struct {
	*stdb.DbConnection
	Db       *RemoteTables
	Reducers *RemoteReducers
}

// Builder wraps stdb.Builder so callbacks receive the typed connection.
type Builder struct {
	inner *stdb.Builder
	db    *RemoteTables
	conn  *DbConnection

	onConnect    func(conn *DbConnection, identity stdb.Identity, token string)
	onDisconnect func(conn *DbConnection, err error)
}

// NewBuilder returns a builder whose connection mirrors every module table.
func NewBuilder() *Builder {
	db := NewRemoteTables()
	b := &Builder{
		inner: stdb.NewBuilder().WithTables(db.All()...),
		db:    db,
	}
	b.inner.
		OnConnect(func(_ *stdb.DbConnection, id stdb.Identity, token string) {
			if b.onConnect != nil && b.conn != nil {
				b.onConnect(b.conn, id, token)
			}
		}).
		OnDisconnect(func(_ *stdb.DbConnection, err error) {
			if b.onDisconnect != nil && b.conn != nil {
				b.onDisconnect(b.conn, err)
			}
		})
	return b
}

// WithURI sets the server host, with or without a scheme.
func (b *Builder) WithURI(uri string) *Builder { b.inner.WithURI(uri); return b }

// WithModuleName sets the database module to join.
func (b *Builder) WithModuleName(name string) *Builder { b.inner.WithModuleName(name); return b }

// WithToken sets the token to authenticate with. Empty connects anonymously.
func (b *Builder) WithToken(token string) *Builder { b.inner.WithToken(token); return b }

// WithLogger sets the connection logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder { b.inner.WithLogger(logger); return b }

// WithExecutor sets where connection callbacks run.
func (b *Builder) WithExecutor(ex stdb.Executor) *Builder { b.inner.WithExecutor(ex); return b }

// WithTransport replaces the websocket transport.
func (b *Builder) WithTransport(factory stdb.TransportFactory) *Builder {
	b.inner.WithTransport(factory)
	return b
}

// WithTransportConfig sets websocket timeouts and buffer sizes.
func (b *Builder) WithTransportConfig(cfg stdb.TransportConfig) *Builder {
	b.inner.WithTransportConfig(cfg)
	return b
}

// OnConnect registers fn for the identity token that completes the handshake.
func (b *Builder) OnConnect(fn func(conn *DbConnection, identity stdb.Identity, token string)) *Builder {
	b.onConnect = fn
	return b
}

// OnDisconnect registers fn for when an established connection closes.
func (b *Builder) OnDisconnect(fn func(conn *DbConnection, err error)) *Builder {
	b.onDisconnect = fn
	return b
}

// OnConnectError registers fn for a connection that never completes.
func (b *Builder) OnConnectError(fn func(err error)) *Builder {
	b.inner.OnConnectError(fn)
	return b
}

// Build starts connecting. See stdb.Builder.Build.
func (b *Builder) Build() (*DbConnection, error) {
	raw, err := b.inner.Build()
	if err != nil {
		return nil, err
	}
	b.conn = &DbConnection{
		DbConnection: raw,
		Db:           b.db,
		Reducers:     &RemoteReducers{conn: raw},
	}
	return b.conn, nil
}
