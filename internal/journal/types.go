package journal

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotStarted     = errors.New("journal writer not started")
	ErrAlreadyStarted = errors.New("journal writer already started")
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one observed row change.
type Event struct {
	Table      string
	Op         Op
	RowKey     string
	Payload    any // Row value, stored as jsonb
	ObservedAt time.Time
}

// Config holds writer configuration.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits in a partial batch
	BufferSize    int           // Queue ceiling; events beyond it are dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Recorded int64 `json:"recorded"` // Events accepted by Record
	Dropped  int64 `json:"dropped"`  // Events rejected because the queue was full or closed
	Inserted int64 `json:"inserted"` // Rows written
	Flushes  int64 `json:"flushes"`
	Errors   int64 `json:"errors"` // Failed batches
}
