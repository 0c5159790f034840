package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/iqoption-data/internal/correlation"
)

var _ correlation.Transport = (*WSTransport)(nil)

// lifetime is one dialed connection, from Connect until it ends.
type lifetime struct {
	conn    *websocket.Conn
	done    chan struct{}
	once    sync.Once
	closing atomic.Bool // Close was called locally
}

// WSTransport is a correlation.Transport over a single websocket.
type WSTransport struct {
	cfg    Config
	logger *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	// State
	mu           sync.RWMutex
	life         *lifetime
	lastActivity time.Time
	onDisconnect func(error)

	lifetimes atomic.Int64
	framesIn  atomic.Int64
	framesOut atomic.Int64
	bytesIn   atomic.Int64
	bytesOut  atomic.Int64
}

// NewWSTransport creates a new websocket transport.
func NewWSTransport(cfg Config, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSTransport{
		cfg:    cfg,
		logger: logger.With("component", "transport"),
	}
}

// Connect dials a new connection lifetime.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	live := t.life != nil
	t.mu.RUnlock()
	if live {
		return ErrAlreadyConnected
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		return err
	}
	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}

	life := &lifetime{conn: conn, done: make(chan struct{})}

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

	t.mu.Lock()
	if t.life != nil {
		t.mu.Unlock()
		conn.Close()
		return ErrAlreadyConnected
	}
	t.life = life
	t.lastActivity = time.Now()
	t.mu.Unlock()

	t.lifetimes.Add(1)

	if t.cfg.PingInterval > 0 {
		go t.heartbeatLoop(life)
	}

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	return nil
}

// WriteFrame writes one text frame.
func (t *WSTransport) WriteFrame(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	life := t.life
	t.mu.RUnlock()
	if life == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	life.conn.SetWriteDeadline(deadline)
	if err := life.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	t.framesOut.Add(1)
	t.bytesOut.Add(int64(len(data)))
	return nil
}

// ReadFrame blocks for the next data frame. Any read error ends the
// current lifetime; a normal or local close is reported as ErrNormalClosure.
func (t *WSTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	t.mu.RLock()
	life := t.life
	t.mu.RUnlock()
	if life == nil {
		return nil, ErrNotConnected
	}

	// Unblock the read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		life.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := life.conn.ReadMessage()
	if err != nil {
		cause := t.classify(life, err)
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		t.endLifetime(life, cause)
		return nil, cause
	}

	t.touch()
	t.framesIn.Add(1)
	t.bytesIn.Add(int64(len(data)))
	return data, nil
}

// OnDisconnect registers the callback for the end of each lifetime.
func (t *WSTransport) OnDisconnect(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// Close gracefully closes the current connection. It is a no-op when
// nothing is connected.
func (t *WSTransport) Close() error {
	t.mu.RLock()
	life := t.life
	t.mu.RUnlock()
	if life == nil {
		return nil
	}

	life.closing.Store(true)

	// Send close message
	life.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	t.endLifetime(life, ErrNormalClosure)
	return nil
}

// IsConnected returns the current connection state.
func (t *WSTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.life != nil
}

// Stats returns current statistics.
func (t *WSTransport) Stats() Stats {
	t.mu.RLock()
	connected := t.life != nil
	last := t.lastActivity
	t.mu.RUnlock()

	return Stats{
		Connected:    connected,
		Lifetimes:    t.lifetimes.Load(),
		FramesIn:     t.framesIn.Load(),
		FramesOut:    t.framesOut.Load(),
		BytesIn:      t.bytesIn.Load(),
		BytesOut:     t.bytesOut.Load(),
		LastActivity: last,
	}
}

// classify maps a read error to the cause reported for the lifetime.
func (t *WSTransport) classify(life *lifetime, err error) error {
	if life.closing.Load() {
		return ErrNormalClosure
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %w", ErrNormalClosure, err)
	}
	return err
}

// endLifetime closes life's socket and fires the disconnect callback once.
func (t *WSTransport) endLifetime(life *lifetime, cause error) {
	life.once.Do(func() {
		close(life.done)
		life.conn.Close()

		t.mu.Lock()
		if t.life == life {
			t.life = nil
		}
		cb := t.onDisconnect
		t.mu.Unlock()

		if errors.Is(cause, correlation.ErrConnectionClosed) {
			t.logger.Debug("websocket closed")
		} else {
			t.logger.Warn("websocket disconnected", "error", cause)
		}

		if cb != nil {
			cb(cause)
		}
	})
}

func (t *WSTransport) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// heartbeatLoop pings the server and ends stale lifetimes.
func (t *WSTransport) heartbeatLoop(life *lifetime) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-life.done:
			return
		case <-ticker.C:
			// Send a ping to keep connection alive
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := life.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			// Check for stale connection (no pong/ping response)
			t.mu.RLock()
			last := t.lastActivity
			t.mu.RUnlock()

			if t.cfg.PingTimeout > 0 && time.Since(last) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_activity", last,
					"timeout", t.cfg.PingTimeout,
				)
				t.endLifetime(life, ErrStaleConnection)
				return
			}
		}
	}
}
