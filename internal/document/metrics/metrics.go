package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document module.
type Metrics struct {
	DocumentsCreated    prometheus.Counter
	SignaturesRecorded  *prometheus.CounterVec
	DocumentsCertified  prometheus.Counter
	DocumentsRejected   prometheus.Counter
	RenderFailures      prometheus.Counter
	CertifyDuration     prometheus.Histogram
}

// New creates a Metrics instance with all document module metrics registered.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_documents_created_total",
			Help: "Total number of documents created (both branches)",
		}),
		SignaturesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ronflow_signatures_recorded_total",
			Help: "Total number of signatures recorded, by signer role",
		}, []string{"role"}),
		DocumentsCertified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_documents_certified_total",
			Help: "Total number of documents certified",
		}),
		DocumentsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_documents_rejected_total",
			Help: "Total number of documents rejected",
		}),
		RenderFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ronflow_document_render_failures_total",
			Help: "Total number of PDF/template render failures",
		}),
		CertifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ronflow_document_certify_duration_seconds",
			Help:    "Duration of document certification (PDF stamping included)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}
