// Package metrics exposes Prometheus instrumentation for the share service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the service's Prometheus collectors.
type Metrics struct {
	SharesIssued      prometheus.Counter
	SharesRevoked     prometheus.Counter
	Redemptions       *prometheus.CounterVec
	MirrorReads       prometheus.Counter
	MirrorDuration    prometheus.Histogram
	AttachmentFetches prometheus.Counter
	DerivedCopies     *prometheus.CounterVec
}

// New creates the service metrics and registers them on the registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SharesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convoshare_shares_issued_total",
			Help: "Number of invitations issued",
		}),
		SharesRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convoshare_shares_revoked_total",
			Help: "Number of invitations revoked by their issuer",
		}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convoshare_redemptions_total",
			Help: "Token redemption attempts by outcome",
		}, []string{"outcome"}),
		MirrorReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convoshare_mirror_reads_total",
			Help: "Number of shared-with-me view computations",
		}),
		MirrorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "convoshare_mirror_duration_seconds",
			Help:    "Time spent computing shared-with-me views",
			Buckets: prometheus.DefBuckets,
		}),
		AttachmentFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convoshare_attachment_fetches_total",
			Help: "Number of companion attachment downloads",
		}),
		DerivedCopies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convoshare_derived_copies_total",
			Help: "Derived conversation copies by action",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.SharesIssued,
		m.SharesRevoked,
		m.Redemptions,
		m.MirrorReads,
		m.MirrorDuration,
		m.AttachmentFetches,
		m.DerivedCopies,
	)

	return m
}
