package correlation

import "time"

// Registry names reported to Metrics.
const (
	RegistryPending      = "pending"
	RegistryWait         = "wait"
	RegistrySubscription = "subscription"
)

// Waiter outcomes reported to Metrics.
const (
	OutcomeResolved  = "resolved"
	OutcomeTimeout   = "timeout"
	OutcomeClosed    = "closed"
	OutcomeCancelled = "cancelled"
)

// Metrics receives engine events. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	StateChanged(state State)
	FrameReceived(kind string)
	FrameDropped(kind string)
	DecodeFailed()
	RequestSent(kind string)
	WaiterFinished(registry, outcome string)
	RegistrySize(registry string, n int)
	ReplyLatency(kind string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) StateChanged(State) {}
func (nopMetrics) FrameReceived(string) {}
func (nopMetrics) FrameDropped(string) {}
func (nopMetrics) DecodeFailed() {}
func (nopMetrics) RequestSent(string) {}
func (nopMetrics) WaiterFinished(string, string) {}
func (nopMetrics) RegistrySize(string, int) {}
func (nopMetrics) ReplyLatency(string, time.Duration) {}
