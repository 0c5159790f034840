package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the connection state of a Client.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Client.
type Config struct {
	RequestTimeout         time.Duration // Default deadline for Send and WaitFor (<= 0 disables)
	SubscriptionBufferSize int           // Initial buffer capacity per subscription
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:         30 * time.Second,
		SubscriptionBufferSize: 256,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCodec replaces the default JSONCodec.
func WithCodec(codec Codec) Option {
	return func(c *Client) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithIDGenerator replaces the default UUID correlation ids.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Client) {
		if gen != nil {
			c.newID = gen
		}
	}
}

type sendOptions struct {
	timeout     time.Duration
	replyKind   string
	expectReply bool
}

// SendOption customizes one Send call.
type SendOption func(*sendOptions)

// WithTimeout overrides the request deadline. Zero or negative disables it.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = d }
}

// ExpectReply only accepts a reply of the given kind for the request id.
// Other kinds carrying the same id are left to the wait registry.
func ExpectReply(kind string) SendOption {
	return func(o *sendOptions) {
		o.expectReply = true
		o.replyKind = kind
	}
}

// NoReply sends fire-and-forget: no pending entry is registered.
func NoReply() SendOption {
	return func(o *sendOptions) { o.expectReply = false }
}

// Stats contains a snapshot of client state.
type Stats struct {
	State         State
	Pending       int
	Waiting       int
	Subscriptions int
	Dispatcher    DispatcherStats
}

// Client multiplexes requests, replies and push events over one Transport.
type Client struct {
	cfg       Config
	transport Transport
	codec     Codec
	newID     IDGenerator
	logger    *slog.Logger
	metrics   Metrics

	pending    *PendingTable
	waits      *WaitRegistry
	subs       *SubscriptionRegistry
	dispatcher *Dispatcher

	// connectMu serializes SubscribeRaw and Close.
	connectMu sync.Mutex

	mu         sync.RWMutex
	state      State
	lifetime   uint64
	cancel     context.CancelFunc
	readerDone chan struct{}
}

// New creates a Client over transport. The client starts Idle; call
// SubscribeRaw to connect.
func New(transport Transport, cfg Config, opts ...Option) *Client {
	if cfg.SubscriptionBufferSize <= 0 {
		cfg.SubscriptionBufferSize = DefaultConfig().SubscriptionBufferSize
	}

	c := &Client{
		cfg:       cfg,
		transport: transport,
		codec:     JSONCodec{},
		newID:     NewUUIDGenerator(),
		logger:    slog.Default(),
		metrics:   nopMetrics{},
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "correlation")

	c.pending = NewPendingTable(c.metrics)
	c.waits = NewWaitRegistry(c.metrics)
	c.subs = NewSubscriptionRegistry(c.metrics)
	c.dispatcher = NewDispatcher(c.codec, c.pending, c.waits, c.subs, c.logger, c.metrics)

	transport.OnDisconnect(func(err error) {
		c.disconnect(c.currentLifetime(), err)
	})

	return c
}

// SubscribeRaw opens the transport and starts the reader. It is a no-op
// while connected. From Disconnected it starts a new connection lifetime.
func (c *Client) SubscribeRaw(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	prevDone := c.readerDone
	c.lifetime++
	life := c.lifetime
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	// The previous reader must be gone before a new one may read.
	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		}
	}

	if err := c.transport.Connect(ctx); err != nil {
		c.setState(StateDisconnected)
		c.logger.Error("connect failed", "error", err)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.readerDone = done
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(readCtx, life, done)

	c.logger.Info("connected", "lifetime", life)
	return nil
}

// Send writes a request of kind with body and returns its handle without
// waiting for the reply. body is JSON-encoded; json.RawMessage passes through.
func (c *Client) Send(ctx context.Context, kind string, body any, opts ...SendOption) (*Handle, error) {
	so := sendOptions{timeout: c.cfg.RequestTimeout, expectReply: true}
	for _, opt := range opts {
		opt(&so)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", kind, err)
	}

	now := time.Now()
	id := c.newID()
	frame, err := c.codec.Encode(Envelope{
		Kind:          kind,
		CorrelationID: id,
		Payload:       payload,
		Timestamp:     now,
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{
		ID:     id,
		Kind:   kind,
		SentAt: now,
		client: c,
		done:   make(chan struct{}),
	}

	c.mu.RLock()
	if c.state != StateConnected {
		c.mu.RUnlock()
		return nil, ErrNotConnected
	}
	if so.expectReply {
		slot, err := c.pending.Register(id, so.replyKind, deadlineFor(now, so.timeout))
		if err != nil {
			c.mu.RUnlock()
			return nil, err
		}
		h.slot = slot
	}
	c.mu.RUnlock()

	if err := c.transport.WriteFrame(ctx, frame); err != nil {
		if h.slot != nil {
			c.pending.Cancel(id)
		}
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	c.metrics.RequestSent(kind)
	c.logger.Debug("request sent", "kind", kind, "request_id", id, "expect_reply", so.expectReply)
	return h, nil
}

// Await blocks until h resolves or ctx ends.
func (c *Client) Await(ctx context.Context, h *Handle) (Envelope, error) {
	return h.Await(ctx)
}

// WaitFor blocks until an inbound envelope of kind satisfies m. Only
// envelopes that arrive after registration are considered. A zero timeout
// uses the configured default; a negative one disables the deadline.
func (c *Client) WaitFor(ctx context.Context, kind string, m Matcher, timeout time.Duration) (Envelope, error) {
	if timeout == 0 {
		timeout = c.cfg.RequestTimeout
	}

	c.mu.RLock()
	if c.state != StateConnected {
		c.mu.RUnlock()
		return Envelope{}, ErrNotConnected
	}
	handle, slot := c.waits.Register(kind, m, deadlineFor(time.Now(), timeout))
	c.mu.RUnlock()

	select {
	case r := <-slot:
		return r.Envelope, r.Err
	case <-ctx.Done():
		if c.waits.Remove(handle) {
			return Envelope{}, ctx.Err()
		}
		// Resolved concurrently; the slot already holds the result.
		r := <-slot
		return r.Envelope, r.Err
	}
}

// Subscribe registers a persistent subscription for every envelope of kind
// matching m, until Unsubscribe or disconnect.
func (c *Client) Subscribe(kind string, m Matcher) (*Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	return c.subs.Add(kind, m, c.cfg.SubscriptionBufferSize), nil
}

// Close ends the current connection, failing all waiters with
// ErrConnectionClosed, and waits for the reader to exit.
func (c *Client) Close() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	var p, w, s int
	wasConnected := c.state == StateConnected
	if wasConnected {
		p, w, s = c.shutdownLocked(ErrConnectionClosed)
	}
	cancel, done := c.cancel, c.readerDone
	c.mu.Unlock()

	err := c.transport.Close()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if wasConnected {
		c.logger.Info("connection closed", "drained_pending", p, "drained_waits", w, "closed_subscriptions", s)
	}
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	return Stats{
		State:         c.State(),
		Pending:       c.pending.Len(),
		Waiting:       c.waits.Len(),
		Subscriptions: c.subs.Len(),
		Dispatcher:    c.dispatcher.Stats(),
	}
}

// readLoop runs the dispatcher for one connection lifetime.
func (c *Client) readLoop(ctx context.Context, life uint64, done chan struct{}) {
	defer close(done)

	err := c.dispatcher.Run(ctx, c.transport)
	if ctx.Err() != nil {
		return
	}
	if !errors.Is(err, ErrConnectionClosed) {
		err = fmt.Errorf("%w: %w", ErrRead, err)
	}
	c.disconnect(life, err)
}

// disconnect moves lifetime life from Connected to Disconnected and drains
// every waiter. Calls for stale lifetimes or other states are no-ops.
func (c *Client) disconnect(life uint64, cause error) {
	reason := ErrConnectionClosed
	if cause != nil && !errors.Is(cause, ErrConnectionClosed) {
		reason = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}

	c.mu.Lock()
	if life != c.lifetime || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	p, w, s := c.shutdownLocked(reason)
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.logger.Warn("connection lost",
		"lifetime", life,
		"error", cause,
		"drained_pending", p,
		"drained_waits", w,
		"closed_subscriptions", s,
	)
}

// shutdownLocked transitions to Disconnected and drains both registries.
// Must be called with c.mu held so no waiter registers in between.
func (c *Client) shutdownLocked(reason error) (pending, waits, subs int) {
	c.setStateLocked(StateDisconnected)
	pending = c.pending.DrainAllAsFailed(reason)
	waits = c.waits.DrainAllAsFailed(reason)
	subs = c.subs.CloseAll()
	return pending, waits, subs
}

func (c *Client) currentLifetime() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifetime
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", "from", c.state, "to", s)
	c.state = s
	c.metrics.StateChanged(s)
}

// Handle is an in-flight request returned by Send.
type Handle struct {
	ID     string
	Kind   string
	SentAt time.Time

	slot   <-chan Result
	client *Client

	once   sync.Once
	done   chan struct{}
	result Result
}

// ExpectsReply reports whether a reply is awaited for this request.
func (h *Handle) ExpectsReply() bool { return h.slot != nil }

// Await blocks for the request's single outcome. Later calls return the
// same outcome. If ctx ends first the request is abandoned and ctx's error
// becomes its outcome.
func (h *Handle) Await(ctx context.Context) (Envelope, error) {
	if h.slot == nil {
		return Envelope{}, ErrNoReplyExpected
	}

	select {
	case r := <-h.slot:
		h.settle(r)
	case <-h.done:
	case <-ctx.Done():
		if h.client.pending.Cancel(h.ID) {
			h.settle(Result{Err: ctx.Err()})
			break
		}
		select {
		case r := <-h.slot:
			h.settle(r)
		case <-h.done:
		}
	}

	<-h.done
	return h.result.Envelope, h.result.Err
}

func (h *Handle) settle(r Result) {
	h.once.Do(func() {
		h.result = r
		close(h.done)
	})
}

// encodeBody marshals a request body. A nil body is sent without a payload.
func encodeBody(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

func deadlineFor(now time.Time, timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return now.Add(timeout)
}
