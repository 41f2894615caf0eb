package alert

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clinic/clinic/internal/platform/notification"
)

// Metrics provides observability for the alert module. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Triggered      *prometheus.CounterVec
	Resolved       prometheus.Counter
	Notifications  *prometheus.CounterVec
	FanOutDuration prometheus.Histogram
	AuditFailures  prometheus.Counter
}

// NewMetrics registers the alert metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Triggered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_emergency_alerts_triggered_total",
			Help: "Emergency alerts triggered by emergency type",
		}, []string{"type"}),

		Resolved: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_emergency_alerts_resolved_total",
			Help: "Emergency alerts resolved",
		}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_alert_notifications_total",
			Help: "Alert notification attempts by channel, audience and outcome",
		}, []string{"channel", "audience", "outcome"}),

		FanOutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinic_alert_fanout_duration_seconds",
			Help:    "Duration of trigger fan-out across both phases",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "clinic_alert_audit_failures_total",
			Help: "Audit ledger writes that failed",
		}),
	}
}

func (m *Metrics) IncTriggered(t EmergencyType) {
	if m != nil {
		m.Triggered.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) IncResolved() {
	if m != nil {
		m.Resolved.Inc()
	}
}

func (m *Metrics) IncNotification(ch notification.Channel, aud Audience, success bool) {
	if m != nil {
		outcome := "failure"
		if success {
			outcome = "success"
		}
		m.Notifications.WithLabelValues(string(ch), string(aud), outcome).Inc()
	}
}

func (m *Metrics) ObserveFanOut(d time.Duration) {
	if m != nil {
		m.FanOutDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncAuditFailure() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}
