package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/iqoption-data/internal/correlation"
)

const namespace = "iqoption"

var _ correlation.Metrics = (*Engine)(nil)

// Engine exports correlation engine events as Prometheus metrics.
type Engine struct {
	state          *prometheus.GaugeVec
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	requestsSent   *prometheus.CounterVec
	waiterOutcomes *prometheus.CounterVec
	registrySize   *prometheus.GaugeVec
	replyLatency   *prometheus.HistogramVec
}

var states = []correlation.State{
	correlation.StateIdle,
	correlation.StateConnecting,
	correlation.StateConnected,
	correlation.StateDisconnected,
}

// NewEngine creates the engine collectors and registers them on reg.
func NewEngine(reg prometheus.Registerer) (*Engine, error) {
	e := &Engine{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (1 for the active state label, 0 for others).",
		}, []string{"state"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "frames_received_total",
			Help:      "Decoded inbound envelopes by kind.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "frames_dropped_total",
			Help:      "Inbound envelopes that matched no waiter, by kind.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "decode_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		requestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_sent_total",
			Help:      "Requests written to the connection, by kind.",
		}, []string{"kind"}),
		waiterOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "waiter_outcomes_total",
			Help:      "Finished waiters by registry and outcome.",
		}, []string{"registry", "outcome"}),
		registrySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "registry_size",
			Help:      "Active waiters per registry.",
		}, []string{"registry"}),
		replyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reply_latency_seconds",
			Help:      "Time from request registration to correlated reply, by reply kind.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		e.state,
		e.framesReceived,
		e.framesDropped,
		e.decodeErrors,
		e.requestsSent,
		e.waiterOutcomes,
		e.registrySize,
		e.replyLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	e.StateChanged(correlation.StateIdle)
	return e, nil
}

// StateChanged marks s as the active state.
func (e *Engine) StateChanged(s correlation.State) {
	for _, known := range states {
		v := 0.0
		if known == s {
			v = 1
		}
		e.state.WithLabelValues(known.String()).Set(v)
	}
}

func (e *Engine) FrameReceived(kind string) { e.framesReceived.WithLabelValues(kind).Inc() }
func (e *Engine) FrameDropped(kind string) { e.framesDropped.WithLabelValues(kind).Inc() }
func (e *Engine) DecodeFailed() { e.decodeErrors.Inc() }
func (e *Engine) RequestSent(kind string) { e.requestsSent.WithLabelValues(kind).Inc() }

func (e *Engine) WaiterFinished(registry, outcome string) {
	e.waiterOutcomes.WithLabelValues(registry, outcome).Inc()
}

func (e *Engine) RegistrySize(registry string, n int) {
	e.registrySize.WithLabelValues(registry).Set(float64(n))
}

func (e *Engine) ReplyLatency(kind string, d time.Duration) {
	e.replyLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
