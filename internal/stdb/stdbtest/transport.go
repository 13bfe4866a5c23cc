// Package stdbtest provides an in-memory transport and message builders for
// testing code built on package stdb.
package stdbtest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/mmorpg-client/internal/stdb"
)

// Transport is an in-memory stdb.Transport. Inbound messages are pushed by
// the test; outbound messages are recorded.
type Transport struct {
	Config stdb.TransportConfig

	mu         sync.Mutex
	connectErr error
	block      chan struct{}
	connected  bool
	closed     bool
	sent       [][]byte

	messages chan stdb.TimestampedMessage
	errors   chan error
}

func newTransport(cfg stdb.TransportConfig, connectErr error, block chan struct{}) *Transport {
	return &Transport{
		Config:     cfg,
		connectErr: connectErr,
		block:      block,
		messages:   make(chan stdb.TimestampedMessage, 256),
		errors:     make(chan error, 1),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return stdb.ErrAlreadyClosed
	}
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	return nil
}

func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return stdb.ErrNotConnected
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *Transport) Messages() <-chan stdb.TimestampedMessage { return t.messages }

func (t *Transport) Errors() <-chan error { return t.errors }

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Push queues an inbound server message.
func (t *Transport) Push(data []byte) {
	t.messages <- stdb.TimestampedMessage{Data: data, ReceivedAt: time.Now()}
}

// Fail simulates the connection dropping.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.errors <- err
}

// Sent returns the outbound messages decoded as tag → body.
func (t *Transport) Sent() []map[string]json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]map[string]json.RawMessage, 0, len(t.sent))
	for _, data := range t.sent {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(data, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Network hands out Transports and counts how many connections were built.
type Network struct {
	mu         sync.Mutex
	transports []*Transport
	connectErr error
	block      chan struct{}
}

// NewNetwork returns a network whose transports connect immediately.
func NewNetwork() *Network {
	return &Network{}
}

// FailConnects makes later transports return err from Connect.
func (n *Network) FailConnects(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectErr = err
}

// HoldConnects makes later transports block in Connect until the returned
// func is called.
func (n *Network) HoldConnects() (release func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan struct{})
	n.block = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Factory returns a stdb.TransportFactory backed by this network.
func (n *Network) Factory() stdb.TransportFactory {
	return func(cfg stdb.TransportConfig, _ *slog.Logger) stdb.Transport {
		n.mu.Lock()
		defer n.mu.Unlock()
		t := newTransport(cfg, n.connectErr, n.block)
		n.transports = append(n.transports, t)
		return t
	}
}

// Count returns the number of transports built so far.
func (n *Network) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transports)
}

// Last returns the most recently built transport, nil if none.
func (n *Network) Last() *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.transports) == 0 {
		return nil
	}
	return n.transports[len(n.transports)-1]
}
