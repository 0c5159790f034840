package correlation

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rickgao/iqoption-data/internal/queue"
)

// Subscription receives every inbound envelope of one kind that satisfies
// its matcher, until it is unsubscribed or the connection drops.
type Subscription struct {
	id      uint64
	kind    string
	matcher Matcher
	buf     *queue.GrowableBuffer[Envelope]
	reg     *SubscriptionRegistry
}

// Kind returns the subscribed message kind.
func (s *Subscription) Kind() string { return s.kind }

// Next blocks for the next envelope. Envelopes buffered before the
// subscription closed are still returned; after that Next fails with
// ErrSubscriptionClosed.
func (s *Subscription) Next(ctx context.Context) (Envelope, error) {
	env, err := s.buf.ReceiveContext(ctx)
	if errors.Is(err, queue.ErrClosed) {
		return Envelope{}, ErrSubscriptionClosed
	}
	return env, err
}

// TryNext returns a buffered envelope without blocking.
func (s *Subscription) TryNext() (Envelope, bool) {
	return s.buf.TryReceive()
}

// Unsubscribe stops delivery and closes the subscription.
func (s *Subscription) Unsubscribe() {
	s.reg.Remove(s)
}

// Stats returns the subscription buffer statistics.
func (s *Subscription) Stats() queue.BufferStats {
	return s.buf.Stats()
}

// SubscriptionRegistry holds persistent, multi-delivery subscriptions.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	byKind  map[string][]*Subscription
	count   int
	next    uint64
	metrics Metrics
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry(metrics Metrics) *SubscriptionRegistry {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SubscriptionRegistry{
		byKind:  make(map[string][]*Subscription),
		metrics: metrics,
	}
}

// Add registers a subscription. A nil matcher matches every envelope of kind.
func (r *SubscriptionRegistry) Add(kind string, matcher Matcher, bufferSize int) *Subscription {
	if matcher == nil {
		matcher = MatchAny()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	s := &Subscription{
		id:      r.next,
		kind:    kind,
		matcher: matcher,
		buf:     queue.NewGrowableBuffer[Envelope](bufferSize),
		reg:     r,
	}
	r.byKind[kind] = append(r.byKind[kind], s)
	r.count++
	r.metrics.RegistrySize(RegistrySubscription, r.count)
	return s
}

// Deliver hands env to every matching subscription without blocking.
// Returns the number of subscriptions that received it.
func (r *SubscriptionRegistry) Deliver(env Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.byKind[env.Kind] {
		if s.matcher.Match(env) && s.buf.Send(env) {
			n++
		}
	}
	return n
}

// Remove closes s and stops delivery to it.
func (r *SubscriptionRegistry) Remove(s *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byKind[s.kind]
	i := slices.Index(list, s)
	if i < 0 {
		return false
	}

	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(r.byKind, s.kind)
	} else {
		r.byKind[s.kind] = list
	}
	r.count--
	s.buf.Close()
	r.metrics.RegistrySize(RegistrySubscription, r.count)
	r.metrics.WaiterFinished(RegistrySubscription, OutcomeCancelled)
	return true
}

// CloseAll closes every subscription and empties the registry.
func (r *SubscriptionRegistry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	for _, list := range r.byKind {
		for _, s := range list {
			s.buf.Close()
			r.metrics.WaiterFinished(RegistrySubscription, OutcomeClosed)
		}
	}
	r.byKind = make(map[string][]*Subscription)
	r.count = 0
	r.metrics.RegistrySize(RegistrySubscription, 0)
	return n
}

// Len returns the number of live subscriptions.
func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
