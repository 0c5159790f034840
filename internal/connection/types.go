package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rickgao/iqoption-data/internal/correlation"
)

// Errors
var (
	ErrNotConnected     = fmt.Errorf("websocket %w", correlation.ErrTransportUnavailable)
	ErrAlreadyConnected = errors.New("already connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrNormalClosure    = fmt.Errorf("websocket %w", correlation.ErrConnectionClosed)
)

// Config configures a websocket transport.
type Config struct {
	URL              string        // WebSocket URL (e.g., wss://iqoption.com/echo/websocket)
	Header           http.Header   // Extra handshake headers (Origin, User-Agent, Cookie)
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        16 << 20, // Candle history replies can be large
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Connected    bool
	Lifetimes    int64
	FramesIn     int64
	FramesOut    int64
	BytesIn      int64
	BytesOut     int64
	LastActivity time.Time
}
