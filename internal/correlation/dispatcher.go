package correlation

import (
	"context"
	"log/slog"
	"sync"
)

// FrameReader is the read half of a Transport.
type FrameReader interface {
	ReadFrame(ctx context.Context) ([]byte, error)
}

// DispatcherStats contains runtime statistics.
type DispatcherStats struct {
	FramesReceived int64
	DecodeErrors   int64
	Resolved       int64 // Envelopes that fulfilled a pending request
	Matched        int64 // Envelopes that fulfilled a wait predicate
	Delivered      int64 // Envelopes handed to at least one subscription
	Dropped        int64 // Envelopes nobody was waiting for
}

// Dispatcher is the single consumer of inbound frames. Each envelope is
// offered to the pending table by correlation id, then to the wait registry
// and subscriptions by kind and content.
type Dispatcher struct {
	codec   Codec
	pending *PendingTable
	waits   *WaitRegistry
	subs    *SubscriptionRegistry
	logger  *slog.Logger
	metrics Metrics

	mu    sync.RWMutex
	stats DispatcherStats
}

// NewDispatcher creates a dispatcher over the given registries.
func NewDispatcher(codec Codec, pending *PendingTable, waits *WaitRegistry, subs *SubscriptionRegistry, logger *slog.Logger, metrics Metrics) *Dispatcher {
	if codec == nil {
		codec = JSONCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dispatcher{
		codec:   codec,
		pending: pending,
		waits:   waits,
		subs:    subs,
		logger:  logger,
		metrics: metrics,
	}
}

// Run reads frames until ctx is cancelled or the reader fails, and returns
// the error that ended the loop.
func (d *Dispatcher) Run(ctx context.Context, r FrameReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := r.ReadFrame(ctx)
		if err != nil {
			return err
		}
		d.HandleFrame(data)
	}
}

// HandleFrame decodes one raw frame and dispatches it. Frames that do not
// decode are logged and counted.
func (d *Dispatcher) HandleFrame(data []byte) {
	d.mu.Lock()
	d.stats.FramesReceived++
	d.mu.Unlock()

	env, err := d.codec.Decode(data)
	if err != nil {
		d.logger.Warn("failed to decode frame", "error", err, "bytes", len(data))
		d.metrics.DecodeFailed()
		d.mu.Lock()
		d.stats.DecodeErrors++
		d.mu.Unlock()
		return
	}

	d.Dispatch(env)
}

// Dispatch routes a decoded envelope. It never blocks on waiter delivery.
// Returns whether anything consumed the envelope.
func (d *Dispatcher) Dispatch(env Envelope) bool {
	d.metrics.FrameReceived(env.Kind)

	var resolved, matched bool
	var delivered int

	if env.CorrelationID != "" {
		resolved = d.pending.Resolve(env.CorrelationID, env)
	}
	matched = d.waits.TryMatch(env)
	if d.subs != nil {
		delivered = d.subs.Deliver(env)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if resolved {
		d.stats.Resolved++
	}
	if matched {
		d.stats.Matched++
	}
	if delivered > 0 {
		d.stats.Delivered++
	}

	if !resolved && !matched && delivered == 0 {
		d.stats.Dropped++
		d.metrics.FrameDropped(env.Kind)
		d.logger.Debug("dropping unmatched envelope",
			"kind", env.Kind,
			"request_id", env.CorrelationID,
		)
		return false
	}
	return true
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}
