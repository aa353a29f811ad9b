// Package metrics holds the Prometheus collectors of the stream relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agent_stream"

// Outcome is how a stream ended.
type Outcome string

const (
	OutcomeComplete      Outcome = "complete"
	OutcomeError         Outcome = "error"
	OutcomeLimitExceeded Outcome = "limit_exceeded"
	OutcomeProRequired   Outcome = "pro_required"
	OutcomeAbandoned     Outcome = "abandoned"
	OutcomeStopped       Outcome = "stopped"
)

// Recorder records relay activity. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	streamsStarted prometheus.Counter
	outcomes       *prometheus.CounterVec
	wireEvents     *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	activeStreams  prometheus.Gauge
	duration       prometheus.Histogram
}

// New creates a Recorder with its own registry, including Go and process
// collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		streamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_started_total",
			Help:      "Streams opened after the user message was stored.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Streams by terminal outcome.",
		}, []string{"outcome"}),
		wireEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wire_events_total",
			Help:      "Wire events written to clients.",
		}, []string{"type"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Agent events with no wire mapping.",
		}, []string{"type"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streams currently open on this instance.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Time from stream open to its terminal event.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}),
	}

	r.registry.MustRegister(
		r.streamsStarted,
		r.outcomes,
		r.wireEvents,
		r.droppedEvents,
		r.activeStreams,
		r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) StreamStarted() {
	if r == nil {
		return
	}
	r.streamsStarted.Inc()
}

// StreamEnded records the outcome and how long the stream was open.
func (r *Recorder) StreamEnded(outcome Outcome, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(string(outcome)).Inc()
	r.duration.Observe(elapsed.Seconds())
}

func (r *Recorder) WireEvent(eventType string) {
	if r == nil {
		return
	}
	r.wireEvents.WithLabelValues(eventType).Inc()
}

func (r *Recorder) DroppedEvent(eventType string) {
	if r == nil {
		return
	}
	r.droppedEvents.WithLabelValues(eventType).Inc()
}

// SetActive sets the number of open streams.
func (r *Recorder) SetActive(n int) {
	if r == nil {
		return
	}
	r.activeStreams.Set(float64(n))
}
