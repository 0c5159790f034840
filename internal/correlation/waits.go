package correlation

import (
	"slices"
	"sync"
	"time"
)

// WaitHandle identifies a registered wait predicate.
type WaitHandle uint64

// waitEntry is one content-matched waiter.
type waitEntry struct {
	handle   WaitHandle
	kind     string
	matcher  Matcher
	slot     chan Result
	deadline time.Time
	timer    *time.Timer
}

func (e *waitEntry) expiredAt(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// WaitRegistry holds "wait for the next message like X" predicates.
// Predicates of one kind are considered in registration order.
type WaitRegistry struct {
	mu       sync.Mutex
	byKind   map[string][]*waitEntry
	byHandle map[WaitHandle]*waitEntry
	next     WaitHandle
	metrics  Metrics
}

// NewWaitRegistry creates an empty registry. A nil metrics disables reporting.
func NewWaitRegistry(metrics Metrics) *WaitRegistry {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &WaitRegistry{
		byKind:   make(map[string][]*waitEntry),
		byHandle: make(map[WaitHandle]*waitEntry),
		metrics:  metrics,
	}
}

// Register adds a predicate for kind. A nil matcher matches any envelope of
// that kind. A zero deadline means the predicate never times out on its own.
func (r *WaitRegistry) Register(kind string, matcher Matcher, deadline time.Time) (WaitHandle, <-chan Result) {
	if matcher == nil {
		matcher = MatchAny()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	e := &waitEntry{
		handle:   r.next,
		kind:     kind,
		matcher:  matcher,
		slot:     make(chan Result, 1),
		deadline: deadline,
	}
	if !deadline.IsZero() {
		e.timer = time.AfterFunc(time.Until(deadline), func() { r.expireEntry(e) })
	}

	r.byKind[kind] = append(r.byKind[kind], e)
	r.byHandle[e.handle] = e
	r.metrics.RegistrySize(RegistryWait, len(r.byHandle))
	return e.handle, e.slot
}

// TryMatch resolves the first-registered live predicate of env.Kind whose
// matcher accepts env. Predicates found past their deadline on the way are
// failed with ErrTimeout. Returns whether a predicate was resolved.
func (r *WaitRegistry) TryMatch(env Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var expired []*waitEntry
	var hit *waitEntry
	for _, e := range r.byKind[env.Kind] {
		if e.expiredAt(now) {
			expired = append(expired, e)
			continue
		}
		if e.matcher.Match(env) {
			hit = e
			break
		}
	}

	for _, e := range expired {
		r.removeLocked(e)
		e.slot <- Result{Err: ErrTimeout}
		r.metrics.WaiterFinished(RegistryWait, OutcomeTimeout)
	}

	if hit == nil {
		return false
	}
	r.removeLocked(hit)
	hit.slot <- Result{Envelope: env}
	r.metrics.WaiterFinished(RegistryWait, OutcomeResolved)
	return true
}

// Expire fails the predicate with ErrTimeout if it is still registered.
func (r *WaitRegistry) Expire(h WaitHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHandle[h]
	if !ok {
		return false
	}
	r.removeLocked(e)
	e.slot <- Result{Err: ErrTimeout}
	r.metrics.WaiterFinished(RegistryWait, OutcomeTimeout)
	return true
}

// Remove unregisters the predicate without writing a result.
func (r *WaitRegistry) Remove(h WaitHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHandle[h]
	if !ok {
		return false
	}
	r.removeLocked(e)
	r.metrics.WaiterFinished(RegistryWait, OutcomeCancelled)
	return true
}

// DrainAllAsFailed resolves every predicate with reason and empties the
// registry. Returns the number of predicates drained.
func (r *WaitRegistry) DrainAllAsFailed(reason error) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.byHandle)
	for _, e := range r.byHandle {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.slot <- Result{Err: reason}
		r.metrics.WaiterFinished(RegistryWait, OutcomeClosed)
	}
	r.byKind = make(map[string][]*waitEntry)
	r.byHandle = make(map[WaitHandle]*waitEntry)
	r.metrics.RegistrySize(RegistryWait, 0)
	return n
}

// Len returns the number of registered predicates.
func (r *WaitRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHandle)
}

func (r *WaitRegistry) expireEntry(e *waitEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byHandle[e.handle] != e {
		return
	}
	r.removeLocked(e)
	e.slot <- Result{Err: ErrTimeout}
	r.metrics.WaiterFinished(RegistryWait, OutcomeTimeout)
}

// removeLocked unlinks e from both indexes. Must be called with lock held.
func (r *WaitRegistry) removeLocked(e *waitEntry) {
	delete(r.byHandle, e.handle)
	if e.timer != nil {
		e.timer.Stop()
	}

	list := r.byKind[e.kind]
	if i := slices.Index(list, e); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(r.byKind, e.kind)
	} else {
		r.byKind[e.kind] = list
	}
	r.metrics.RegistrySize(RegistryWait, len(r.byHandle))
}
