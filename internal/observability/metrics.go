package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors exported by soracast.
type Metrics struct {
	Registry *prometheus.Registry

	// ActionsTotal counts processed actions by kind and result.
	ActionsTotal *prometheus.CounterVec
	// EncoderInvocations counts ffmpeg subprocess invocations by operation.
	EncoderInvocations *prometheus.CounterVec
	// CacheHits counts content-addressed cache hits and misses.
	CacheHits *prometheus.CounterVec
	// QueueLength tracks the current stream task queue depth.
	QueueLength prometheus.Gauge
	// EncodeDuration observes end-to-end generation latency per action kind.
	EncodeDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the soracast collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soracast",
			Name:      "actions_total",
			Help:      "Processed actions by kind and result.",
		}, []string{"action", "result"}),
		EncoderInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soracast",
			Name:      "encoder_invocations_total",
			Help:      "ffmpeg subprocess invocations by operation.",
		}, []string{"operation"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soracast",
			Name:      "cache_lookups_total",
			Help:      "Content-addressed cache lookups by outcome.",
		}, []string{"outcome"}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soracast",
			Name:      "stream_queue_length",
			Help:      "Current number of queued stream tasks.",
		}),
		EncodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soracast",
			Name:      "generation_duration_seconds",
			Help:      "End-to-end generation latency per action kind.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"action"}),
	}
}
