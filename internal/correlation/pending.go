package correlation

import (
	"fmt"
	"sync"
	"time"
)

// Result is the single outcome delivered to a waiter.
type Result struct {
	Envelope Envelope
	Err      error
}

// pendingEntry is one outstanding request awaiting its reply.
type pendingEntry struct {
	id           string
	expectedKind string // Empty accepts any kind
	slot         chan Result
	createdAt    time.Time
	deadline     time.Time // Zero means no deadline
	timer        *time.Timer
}

func (e *pendingEntry) expiredAt(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// PendingTable tracks outstanding requests keyed by correlation id.
//
// An entry is removed from the table before its result is written, under
// the table lock, so each entry is resolved exactly once.
type PendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	metrics Metrics
}

// NewPendingTable creates an empty table. A nil metrics disables reporting.
func NewPendingTable(metrics Metrics) *PendingTable {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &PendingTable{
		entries: make(map[string]*pendingEntry),
		metrics: metrics,
	}
}

// Register adds an entry for id and returns its result slot.
// expectedKind, when set, restricts which inbound kind may resolve the entry.
// A zero deadline means the entry never times out on its own.
func (t *PendingTable) Register(id, expectedKind string, deadline time.Time) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCorrelationID, id)
	}

	e := &pendingEntry{
		id:           id,
		expectedKind: expectedKind,
		slot:         make(chan Result, 1),
		createdAt:    time.Now(),
		deadline:     deadline,
	}
	if !deadline.IsZero() {
		e.timer = time.AfterFunc(time.Until(deadline), func() { t.expireEntry(e) })
	}

	t.entries[id] = e
	t.metrics.RegistrySize(RegistryPending, len(t.entries))
	return e.slot, nil
}

// Resolve fulfils the entry for id with env. It returns false when no entry
// is pending, when the entry expects another kind (the entry stays), or
// when the entry's deadline has already passed (the entry fails with
// ErrTimeout instead).
func (t *PendingTable) Resolve(id string, env Envelope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	if e.expectedKind != "" && e.expectedKind != env.Kind {
		return false
	}

	t.removeLocked(e)
	if e.expiredAt(time.Now()) {
		e.slot <- Result{Err: ErrTimeout}
		t.metrics.WaiterFinished(RegistryPending, OutcomeTimeout)
		return false
	}

	e.slot <- Result{Envelope: env}
	t.metrics.WaiterFinished(RegistryPending, OutcomeResolved)
	t.metrics.ReplyLatency(env.Kind, time.Since(e.createdAt))
	return true
}

// Expire fails the entry for id with ErrTimeout if it is still pending.
func (t *PendingTable) Expire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	t.removeLocked(e)
	e.slot <- Result{Err: ErrTimeout}
	t.metrics.WaiterFinished(RegistryPending, OutcomeTimeout)
	return true
}

// Cancel removes the entry for id without writing a result.
// Used when the request never reached the wire or its caller gave up.
func (t *PendingTable) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	t.removeLocked(e)
	t.metrics.WaiterFinished(RegistryPending, OutcomeCancelled)
	return true
}

// DrainAllAsFailed resolves every pending entry with reason and empties
// the table. Returns the number of entries drained.
func (t *PendingTable) DrainAllAsFailed(reason error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	for _, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.slot <- Result{Err: reason}
		t.metrics.WaiterFinished(RegistryPending, OutcomeClosed)
	}
	t.entries = make(map[string]*pendingEntry)
	t.metrics.RegistrySize(RegistryPending, 0)
	return n
}

// Len returns the number of pending entries.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// expireEntry is the deadline timer callback. It only fires the timeout if
// e is still the registered entry for its id.
func (t *PendingTable) expireEntry(e *pendingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[e.id] != e {
		return
	}
	t.removeLocked(e)
	e.slot <- Result{Err: ErrTimeout}
	t.metrics.WaiterFinished(RegistryPending, OutcomeTimeout)
}

// removeLocked deletes e and stops its timer. Must be called with lock held.
func (t *PendingTable) removeLocked(e *pendingEntry) {
	delete(t.entries, e.id)
	if e.timer != nil {
		e.timer.Stop()
	}
	t.metrics.RegistrySize(RegistryPending, len(t.entries))
}
