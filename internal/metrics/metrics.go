package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus collectors for recognition sessions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsFinished  *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	ActiveSessions    prometheus.Gauge
	FramesForwarded   prometheus.Counter
	FramesDropped     prometheus.Counter
	TranscriptUpdates prometheus.Counter
	BackendAvailable  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_sessions_started_total",
			Help: "Total number of recognition sessions started",
		}),
		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_sessions_finished_total",
			Help: "Total number of recognition sessions finished, by outcome",
		}, []string{"outcome"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_session_duration_seconds",
			Help:    "Duration of recognition sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_active_sessions",
			Help: "Number of sessions currently holding the microphone",
		}),
		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_frames_forwarded_total",
			Help: "Total number of audio frames sent to the recognition backend",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_frames_dropped_total",
			Help: "Total number of audio frames dropped on buffer overflow",
		}),
		TranscriptUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcript_updates_total",
			Help: "Total number of transcript changes published",
		}),
		BackendAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_backend_available",
			Help: "Whether the recognition backend accepts new sessions (1) or not (0)",
		}),
		gatherer: reg,
	}
}

// RecordSessionStarted increments the started counter and the active gauge
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionFinished records the outcome of a session that reached Listening
func (m *Metrics) RecordSessionFinished(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.ActiveSessions.Dec()
}

// RecordFrames adds forwarded and dropped frame deltas
func (m *Metrics) RecordFrames(forwarded, dropped uint64) {
	if m == nil {
		return
	}
	m.FramesForwarded.Add(float64(forwarded))
	m.FramesDropped.Add(float64(dropped))
}

// RecordTranscriptUpdate increments the transcript update counter
func (m *Metrics) RecordTranscriptUpdate() {
	if m == nil {
		return
	}
	m.TranscriptUpdates.Inc()
}

// SetBackendAvailable sets the availability gauge
func (m *Metrics) SetBackendAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.BackendAvailable.Set(1)
	} else {
		m.BackendAvailable.Set(0)
	}
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
