package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://iqoption.com/echo/websocket"
	DefaultOrigin             = "https://iqoption.com"
	DefaultUserAgent          = "Mozilla/5.0 (X11; Linux x86_64) iqoption-data"
	DefaultReadyTimeout       = 10 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultRequestTimeout     = 30 * time.Second
	DefaultReadLimit          = 16 << 20
	DefaultSubscriptionBuffer = 1024
	DefaultCandleSize         = 60
	DefaultCandleCount        = 1000
	DefaultCandleConcurrency  = 4
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

// ApplyDefaults fills unset optional fields.
func (c *GathererConfig) ApplyDefaults() {
	// API defaults
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Origin == "" {
		c.API.Origin = DefaultOrigin
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultUserAgent
	}
	if c.API.ReadyTimeout == 0 {
		c.API.ReadyTimeout = DefaultReadyTimeout
	}

	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.RequestTimeout == 0 {
		c.Connection.RequestTimeout = DefaultRequestTimeout
	}
	if c.Connection.ReadLimit == 0 {
		c.Connection.ReadLimit = DefaultReadLimit
	}
	if c.Connection.SubscriptionBuffer == 0 {
		c.Connection.SubscriptionBuffer = DefaultSubscriptionBuffer
	}

	// Candles defaults
	if c.Candles.Size == 0 {
		c.Candles.Size = DefaultCandleSize
	}
	if c.Candles.Count == 0 {
		c.Candles.Count = DefaultCandleCount
	}
	if c.Candles.Concurrency == 0 {
		c.Candles.Concurrency = DefaultCandleConcurrency
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
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
