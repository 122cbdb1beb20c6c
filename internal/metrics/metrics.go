// Package metrics exposes the Prometheus instruments the export
// pipeline updates as it processes batches.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every instrument the Processor and its dependents
// touch. A single instance should be registered per process.
type Metrics struct {
	BatchesProcessed   prometheus.Counter
	BatchFailures      prometheus.Counter
	EventsPersisted    prometheus.Counter
	ContractsUpserted  prometheus.Counter
	ResolverCacheHits   prometheus.Counter
	ResolverCacheMisses prometheus.Counter
	WatermarkHeight    prometheus.Gauge
	RetryAttempts      prometheus.Counter
	BatchDuration      prometheus.Histogram
}

// New builds and registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "batches_processed_total",
			Help:      "Number of trace-record batches processed successfully.",
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "batch_failures_total",
			Help:      "Number of batches that aborted with a batch-fatal error.",
		}),
		EventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "state_events_persisted_total",
			Help:      "Number of wasm state event rows written, including conflict updates.",
		}),
		ContractsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "contracts_upserted_total",
			Help:      "Number of contract rows inserted or updated.",
		}),
		ResolverCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "resolver_cache_hits_total",
			Help:      "Number of code-ID resolutions served from cache.",
		}),
		ResolverCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "resolver_cache_misses_total",
			Help:      "Number of code-ID resolutions that required an RPC call.",
		}),
		WatermarkHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wasm_indexer",
			Name:      "watermark_height",
			Help:      "Current last_wasm_block_height_exported value.",
		}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wasm_indexer",
			Name:      "retry_attempts_total",
			Help:      "Number of retry attempts issued across all retrying components.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wasm_indexer",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of ProcessBatch calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.BatchesProcessed,
		m.BatchFailures,
		m.EventsPersisted,
		m.ContractsUpserted,
		m.ResolverCacheHits,
		m.ResolverCacheMisses,
		m.WatermarkHeight,
		m.RetryAttempts,
		m.BatchDuration,
	)

	return m
}
