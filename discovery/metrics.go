package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedscout_discovery_probes_total",
		Help: "The total number of feed probes by classification",
	}, []string{"likelihood"})

	probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedscout_discovery_probe_duration_seconds",
		Help:    "Duration of feed probes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms up to ~10s
	})

	discoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedscout_discoveries_total",
		Help: "The total number of discovery calls by outcome",
	}, []string{"outcome"})

	feedsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedscout_discovery_feeds_found_total",
		Help: "Feeds confirmed per discovery strategy, before deduplication",
	}, []string{"source"})
)
