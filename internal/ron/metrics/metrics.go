package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the RON session module.
type Metrics struct {
	SessionsScheduled  prometheus.Counter
	SessionsActivated  prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionsCancelled  prometheus.Counter
	CertifyFailures    prometheus.Counter
	CredentialsIssued  *prometheus.CounterVec
	SessionDuration    prometheus.Histogram
}

// New creates a Metrics instance with all session module metrics registered.
func New() *Metrics {
	return &Metrics{
		SessionsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_ron_sessions_scheduled_total",
			Help: "Total number of RON sessions scheduled",
		}),
		SessionsActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_ron_sessions_activated_total",
			Help: "Total number of RON sessions activated by a first join",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_ron_sessions_completed_total",
			Help: "Total number of RON sessions completed",
		}),
		SessionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_ron_sessions_cancelled_total",
			Help: "Total number of RON sessions cancelled (manual or reaper)",
		}),
		CertifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_ron_session_certify_failures_total",
			Help: "Total number of completed sessions whose inline document certification failed",
		}),
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ronflow_ron_join_credentials_issued_total",
			Help: "Total number of video join credentials issued, by participant role",
		}, []string{"role"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ronflow_ron_session_duration_seconds",
			Help:    "Wall-clock duration of completed RON sessions",
			Buckets: []float64{60, 300, 600, 900, 1800, 3600, 7200, 14400},
		}),
	}
}
