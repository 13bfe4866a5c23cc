package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerURI        = "172.25.80.1:3000"
	DefaultModuleName       = "mmorpg"
	DefaultTokenFilePath    = ".spacetime_mmorpg"
	DefaultPlayerPawnClass  = "/Game/Blueprints/BP_PlayerPawn.BP_PlayerPawn_C"
	DefaultFrameInterval    = 16 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultMessageBuffer    = 4096
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 10000
	DefaultStatusPort       = 8080
	DefaultProbeInterval    = 30 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *Config) applyDefaults() {
	// Connection defaults
	if c.Connection.ServerURI == "" {
		c.Connection.ServerURI = DefaultServerURI
	}
	if c.Connection.ModuleName == "" {
		c.Connection.ModuleName = DefaultModuleName
	}
	if c.Connection.TokenFilePath == "" {
		c.Connection.TokenFilePath = DefaultTokenFilePath
	}
	if c.Connection.PlayerPawnClass == "" {
		c.Connection.PlayerPawnClass = DefaultPlayerPawnClass
	}
	if c.Connection.FrameInterval == 0 {
		c.Connection.FrameInterval = DefaultFrameInterval
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.MessageBuffer == 0 {
		c.Connection.MessageBuffer = DefaultMessageBuffer
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
	if c.Status.ProbeInterval == 0 {
		c.Status.ProbeInterval = DefaultProbeInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
