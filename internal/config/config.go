package config

import "time"

// Config is the root configuration for a client instance.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Journal    JournalConfig    `yaml:"journal"`
	Status     StatusConfig     `yaml:"status"`
	Log        LogConfig        `yaml:"log"`
}

// ConnectionConfig holds settings for the database service connection.
type ConnectionConfig struct {
	AutoStart     bool   `yaml:"auto_start" env:"MMO_AUTO_START"`
	ServerURI     string `yaml:"server_uri" env:"MMO_SERVER_URI"`   // host:port, ws(s):// or http(s):// URL
	ModuleName    string `yaml:"module_name" env:"MMO_MODULE_NAME"` // Target database module
	TokenFilePath string `yaml:"token_file_path" env:"MMO_TOKEN_FILE"`

	// PlayerPawnClass is the pawn to spawn for a character flagged needs_spawn.
	// Spawning is not implemented; the value is only reported.
	PlayerPawnClass string `yaml:"player_pawn_class"`

	FrameInterval    time.Duration `yaml:"frame_interval" env:"MMO_FRAME_INTERVAL"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MessageBuffer    int           `yaml:"message_buffer"`
}

// JournalConfig holds the optional row-event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled" env:"MMO_JOURNAL_ENABLED"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"MMO_JOURNAL_DB_HOST"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password" env:"MMO_JOURNAL_DB_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StatusConfig holds the status HTTP endpoint settings.
type StatusConfig struct {
	Enabled bool `yaml:"enabled" env:"MMO_STATUS_ENABLED"`
	Port    int  `yaml:"port" env:"MMO_STATUS_PORT"`

	// ProbeInterval is how often the service's HTTP API is checked while the
	// status endpoint runs.
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"MMO_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"MMO_LOG_FORMAT"` // text or json
}
