package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the log center.
type Metrics struct {
	EntriesTotal      *prometheus.CounterVec
	FlushesTotal      *prometheus.CounterVec
	FlushedEntries    prometheus.Counter
	DroppedBatches    prometheus.Counter
	RotationsTotal    prometheus.Counter
	CompressedFiles   prometheus.Counter
	SearchesTotal     *prometheus.CounterVec
	IndexedEntries    prometheus.Gauge
	StreamConnections prometheus.Gauge
	StreamMessages    *prometheus.CounterVec
	APIRequestsTotal  *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
}

// New initializes and registers the Prometheus metrics on the default
// registry.
func New() *Metrics {
	return &Metrics{
		EntriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "logger",
			Name:      "entries_total",
			Help:      "Total number of logged entries by subsystem and class.",
		}, []string{"subsystem", "class"}), // class: request, error
		FlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "logger",
			Name:      "flushes_total",
			Help:      "Total number of buffer flushes by result.",
		}, []string{"result"}), // result: ok, error
		FlushedEntries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "logger",
			Name:      "flushed_entries_total",
			Help:      "Total number of entries written to durable files.",
		}),
		DroppedBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "logger",
			Name:      "dropped_batches_total",
			Help:      "Total number of batches dropped after a failed flush.",
		}),
		RotationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "logger",
			Name:      "rotations_total",
			Help:      "Total number of daily file rotations.",
		}),
		CompressedFiles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "logger",
			Name:      "compressed_files_total",
			Help:      "Total number of log files gzip-compressed by the retention sweep.",
		}),
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Total number of searches by tier reached.",
		}, []string{"tier"}), // tier: index, file
		IndexedEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "logcenter",
			Subsystem: "search",
			Name:      "indexed_entries",
			Help:      "Current number of entries held across in-memory indexes.",
		}),
		StreamConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "logcenter",
			Subsystem: "stream",
			Name:      "connections",
			Help:      "Current number of open push connections.",
		}),
		StreamMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total number of stream messages by direction and type.",
		}, []string{"direction", "type"}),
		APIRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of management API requests by status class.",
		}, []string{"status"}),
		RateLimitedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logcenter",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-minute limiter.",
		}),
	}
}
