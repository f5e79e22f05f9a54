// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "image"

	// LabelSuccess marks whether a derivation persisted cleanly.
	LabelSuccess = "success"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Count of requests served from an existing derivative.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Count of requests that triggered a new derivation.",
	})

	Derivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "derivations_total",
		Help:      "Count of completed write-behind persistence attempts.",
	}, []string{LabelSuccess})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Duration of image requests, from parse to response end.",
		Buckets:   prometheus.DefBuckets,
	})
)
