package bidding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bidsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auction",
		Subsystem: "bidding",
		Name:      "bids_accepted_total",
		Help:      "Bids accepted and persisted.",
	})

	bidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auction",
		Subsystem: "bidding",
		Name:      "bids_rejected_total",
		Help:      "Bids rejected, by reason.",
	}, []string{"reason"})

	criticalSectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "auction",
		Subsystem: "bidding",
		Name:      "critical_section_seconds",
		Help:      "Time spent holding the per-auction lock per bid.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)
