package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the access code module.
type Metrics struct {
	CodesIssued      prometheus.Counter
	CodesRedeemed    *prometheus.CounterVec
	CodesRegenerated prometheus.Counter
	CodesExpired     prometheus.Counter
}

// New creates a Metrics instance with all access code metrics registered.
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_access_codes_issued_total",
			Help: "Total number of client access codes issued",
		}),
		CodesRedeemed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ronflow_access_codes_redeemed_total",
			Help: "Total number of redemptions, first use vs re-entry",
		}, []string{"kind"}),
		CodesRegenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_access_codes_regenerated_total",
			Help: "Total number of codes regenerated by certifiers",
		}),
		CodesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_access_codes_expired_total",
			Help: "Total number of codes demoted to expired (lazy or reaper)",
		}),
	}
}
