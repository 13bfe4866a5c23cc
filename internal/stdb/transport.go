package stdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a single websocket connection to the service.
type Transport interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of all inbound messages.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// TransportConfig configures a websocket transport.
type TransportConfig struct {
	URL              string        // ws(s)://host/v1/database/<module>/subscribe?...
	Token            string        // Bearer token ("" = anonymous)
	UserAgent        string        // Optional User-Agent header
	HandshakeTimeout time.Duration // Dial/upgrade timeout
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	PingInterval     time.Duration // Keepalive ping period
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		PingTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       4096,
	}
}

// TransportFactory creates a transport. Builders use it so tests can swap the network out.
type TransportFactory func(cfg TransportConfig, logger *slog.Logger) Transport

// transport implements Transport over gorilla/websocket.
type transport struct {
	cfg    TransportConfig
	logger *slog.Logger

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewTransport creates a new websocket transport.
func NewTransport(cfg TransportConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultTransportConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaults.PingTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	return &transport{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (t *transport) Connect(ctx context.Context) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	if t.cfg.UserAgent != "" {
		header.Set("User-Agent", t.cfg.UserAgent)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
		Subprotocols:     []string{Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", redactURL(t.cfg.URL), err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", redactURL(t.cfg.URL), err)
	}

	t.mu.Lock()
	if t.closed {
		// Close raced the dial.
		t.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	t.conn = conn
	t.connected = true
	t.lastPingAt = time.Now()
	t.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	go t.readLoop(conn)
	go t.heartbeatLoop(conn)

	t.logger.Debug("websocket connected", "url", redactURL(t.cfg.URL))

	return nil
}

// Close gracefully closes the connection.
func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.mu.Unlock()

	// Signal goroutines to stop
	close(t.done)

	if conn != nil {
		t.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		return conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (t *transport) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (t *transport) Messages() <-chan TimestampedMessage {
	return t.messages
}

// Errors returns the errors channel.
func (t *transport) Errors() <-chan error {
	return t.errors
}

// IsConnected returns the current connection state.
func (t *transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *transport) touch() {
	t.mu.Lock()
	t.lastPingAt = time.Now()
	t.mu.Unlock()
}

func (t *transport) fail(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	select {
	case t.errors <- err:
	default:
	}
}

// readLoop reads messages from the WebSocket and queues them.
// Row updates must not be dropped, so a full buffer applies backpressure.
func (t *transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-t.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("server closed connection", "error", err)
			}
			t.fail(err)
			return
		}

		select {
		case t.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-t.done:
			return
		}
	}
}

// heartbeatLoop pings the server and watches for a stale connection.
func (t *transport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				conn.Close()
				return
			}
		}
	}
}

// BuildURL derives the subscribe endpoint from a server uri and module name.
// A bare host:port gets ws://; http(s) schemes map to ws(s).
func BuildURL(serverURI, module string, connID ConnectionID) (string, error) {
	serverURI = strings.TrimSpace(serverURI)
	if serverURI == "" {
		return "", ErrMissingURI
	}
	if strings.TrimSpace(module) == "" {
		return "", ErrMissingModule
	}
	if !strings.Contains(serverURI, "://") {
		serverURI = "ws://" + serverURI
	}

	u, err := url.Parse(serverURI)
	if err != nil {
		return "", fmt.Errorf("parse server uri: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server uri scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server uri %q has no host", serverURI)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/database/" + url.PathEscape(module) + "/subscribe"
	q := u.Query()
	q.Set("connection_id", connID.String())
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
