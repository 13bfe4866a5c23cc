package stdb

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrMissingURI      = errors.New("server uri is required")
	ErrMissingModule   = errors.New("module name is required")
	ErrNoTables        = errors.New("no tables registered")
	ErrDuplicateTable  = errors.New("table already registered")
)

// ReducerError is reported when the server rejects a reducer call.
type ReducerError struct {
	Reducer string
	Message string
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer %s failed: %s", e.Reducer, e.Message)
}

// Subprotocol is the websocket subprotocol negotiated with the service.
const Subprotocol = "v1.json.spacetimedb"

// Identity is the 256-bit identifier the service assigns to an authenticated client.
type Identity [32]byte

// ParseIdentity parses a hex identity, with or without a 0x prefix.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decode identity: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("identity must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the lowercase hex form.
func (id Identity) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool { return id == Identity{} }

// MarshalJSON encodes the identity as a hex string.
func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts "hex", "0xhex" or {"__identity__": "0xhex"}.
func (id *Identity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Identity string `json:"__identity__"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		parsed, err := ParseIdentity(wrapped.Identity)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseIdentity(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ConnectionID identifies one connection of an identity.
type ConnectionID [16]byte

// NewConnectionID returns a random connection id.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New())
}

// String returns the lowercase hex form.
func (c ConnectionID) String() string { return hex.EncodeToString(c[:]) }

// MarshalJSON encodes the connection id as a hex string.
func (c ConnectionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a hex string with an optional 0x prefix.
func (c *ConnectionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("decode connection id: %w", err)
	}
	if len(b) != len(c) {
		return fmt.Errorf("connection id must be %d bytes, got %d", len(c), len(b))
	}
	copy(c[:], b)
	return nil
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// EventKind says why a row callback fired.
type EventKind int

const (
	EventSubscribeApplied EventKind = iota + 1 // Rows delivered by an initial subscription
	EventTransaction                           // Rows changed by a committed transaction
)

func (k EventKind) String() string {
	switch k {
	case EventSubscribeApplied:
		return "subscribe_applied"
	case EventTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Event describes the server message that produced a callback.
type Event struct {
	Kind           EventKind
	RequestID      uint32
	Reducer        string // Empty for subscription events
	CallerIdentity Identity
	ReceivedAt     time.Time
}

// Executor runs fn on the goroutine that owns the connection's callbacks.
type Executor interface {
	Post(fn func())
}

// ExecutorFunc is a function adapter for Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Post(fn func()) { f(fn) }

// Stats contains runtime statistics for a connection.
type Stats struct {
	MessagesReceived int64 `json:"messages_received"`
	ParseErrors      int64 `json:"parse_errors"`
	UnknownMessages  int64 `json:"unknown_messages"`
	RowsInserted     int64 `json:"rows_inserted"`
	RowsUpdated      int64 `json:"rows_updated"`
	RowsDeleted      int64 `json:"rows_deleted"`
}
