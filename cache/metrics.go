package cache

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	LabelTier      = "tier"
	LabelOperation = "operation"
	LabelSuccess   = "success"

	OpHas    = "has"
	OpGet    = "get"
	OpPut    = "put"
	OpRemove = "remove"
	OpList   = "list"
)

// Metrics instruments tier operations. Construct once (per process)
// with NewMetrics; the histograms register against the default
// prometheus registerer.
type Metrics struct {
	// Latency of individual tier operations.
	RequestDuration metrics.Histogram
	// Bytes moved into or out of a tier by Get/Put.
	TransferBytes metrics.Counter
}

func NewMetrics() Metrics {
	return Metrics{
		RequestDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: "depot",
			Subsystem: "cache",
			Name:      "request_duration_seconds",
			Help:      "Duration of cache tier operations, in seconds.",
			Buckets:   stdprometheus.DefBuckets,
		}, []string{LabelTier, LabelOperation, LabelSuccess}),
		TransferBytes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "cache",
			Name:      "transfer_bytes_total",
			Help:      "Bytes transferred by cache tier get and put operations.",
		}, []string{LabelTier, LabelOperation}),
	}
}
