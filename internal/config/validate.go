package config

import (
	"errors"
	"fmt"
	"net/url"
)

// MaxCandleCount is the most candles the server returns per history request.
const MaxCandleCount = 1000

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.ValidateStream(); err != nil {
		return err
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

// ValidateStream checks only the sections needed to talk to the server,
// for tools that run without a database.
func (c *GathererConfig) ValidateStream() error {
	u, err := url.Parse(c.API.WSURL)
	if err != nil {
		return fmt.Errorf("api.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("api.ws_url must use ws or wss, got %q", c.API.WSURL)
	}

	if c.Connection.PingTimeout > 0 && c.Connection.PingTimeout <= c.Connection.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%v) must exceed ping_interval (%v)",
			c.Connection.PingTimeout, c.Connection.PingInterval)
	}

	if len(c.Candles.Actives) == 0 {
		return errors.New("candles.actives must list at least one active id")
	}
	for _, id := range c.Candles.Actives {
		if id < 1 {
			return fmt.Errorf("candles.actives contains invalid id %d", id)
		}
	}
	if c.Candles.Size < 1 {
		return errors.New("candles.size must be >= 1")
	}
	if c.Candles.Count < 1 || c.Candles.Count > MaxCandleCount {
		return fmt.Errorf("candles.count must be between 1 and %d, got %d", MaxCandleCount, c.Candles.Count)
	}
	if c.Candles.Concurrency < 1 {
		return errors.New("candles.concurrency must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
