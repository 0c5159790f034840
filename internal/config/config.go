package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Candles    CandlesConfig    `yaml:"candles"`
	Database   DatabaseConfig   `yaml:"database"`
	Writers    WritersConfig    `yaml:"writers"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds IQ Option websocket settings.
type APIConfig struct {
	WSURL        string        `yaml:"ws_url"`
	Origin       string        `yaml:"origin"`        // Origin header sent on the handshake
	UserAgent    string        `yaml:"user_agent"`    // User-Agent header sent on the handshake
	ReadyEvent   string        `yaml:"ready_event"`   // Message kind signalling the session is ready ("" = don't wait)
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // Max wait for ReadyEvent
}

// ConnectionConfig holds transport and correlation settings.
type ConnectionConfig struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ReadLimit          int64         `yaml:"read_limit"`
	SubscriptionBuffer int           `yaml:"subscription_buffer"`
}

// CandlesConfig selects what to fetch.
type CandlesConfig struct {
	Actives     []int `yaml:"actives"`     // Active ids (e.g., 1 = EURUSD, 76 = EURUSD-OTC)
	Size        int   `yaml:"size"`        // Candle size in seconds
	Count       int   `yaml:"count"`       // Candles per history request
	Concurrency int   `yaml:"concurrency"` // Max concurrent history requests
	Live        bool  `yaml:"live"`        // Stream candle-generated after the backfill
}

// DatabaseConfig holds the TimescaleDB connection for time-series data.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
