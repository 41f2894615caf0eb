package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for realtime delivery. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Sessions       prometheus.Gauge
	EventsEmitted  *prometheus.CounterVec
	FramesDropped  prometheus.Counter
	PublishFailure prometheus.Counter
}

// NewMetrics registers the realtime metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "clinic_realtime_sessions",
			Help: "Number of connected realtime sessions",
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_realtime_events_emitted_total",
			Help: "Realtime events emitted by scope kind",
		}, []string{"scope"}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_realtime_frames_dropped_total",
			Help: "Frames skipped because a session's send buffer was full",
		}),
		PublishFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_realtime_publish_failures_total",
			Help: "Events the backend failed to publish",
		}),
	}
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.Sessions.Set(float64(n))
	}
}

func (m *Metrics) IncEmitted(kind ScopeKind) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) IncPublishFailure() {
	if m != nil {
		m.PublishFailure.Inc()
	}
}
