// Package metrics defines the Prometheus instrumentation for the
// ingestion pipeline and the query surface. Collectors register
// against an injected registerer so tests can use private registries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all wortwatch collectors.
type Metrics struct {
	reportsDetected  prometheus.Counter
	readingsIngested prometheus.Counter
	ingestFailures   *prometheus.CounterVec
	tierWriteFails   *prometheus.CounterVec
	ingestDuration   prometheus.Histogram
	queryDuration    *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reportsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wortwatch_reports_detected_total",
			Help: "Report files detected and queued for processing.",
		}),
		readingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wortwatch_readings_ingested_total",
			Help: "Readings written to both tiers with the source file removed.",
		}),
		ingestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wortwatch_ingest_failures_total",
			Help: "Files that failed processing, by pipeline stage.",
		}, []string{"stage"}),
		tierWriteFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wortwatch_tier_write_failures_total",
			Help: "Writes that failed per storage tier.",
		}, []string{"tier"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wortwatch_ingest_duration_seconds",
			Help:    "Time from picking a file up to deleting it.",
			Buckets: prometheus.DefBuckets,
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wortwatch_query_duration_seconds",
			Help:    "Read-side latency by query kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wortwatch_watch_queue_depth",
			Help: "Detected files waiting for a worker.",
		}),
	}

	reg.MustRegister(
		m.reportsDetected,
		m.readingsIngested,
		m.ingestFailures,
		m.tierWriteFails,
		m.ingestDuration,
		m.queryDuration,
		m.queueDepth,
	)
	return m
}

// ReportDetected counts a recognized file entering the queue.
func (m *Metrics) ReportDetected() { m.reportsDetected.Inc() }

// ReadingIngested counts a file driven through both tiers and removed.
func (m *Metrics) ReadingIngested() { m.readingsIngested.Inc() }

// IngestFailure counts a per-file failure at the given stage.
func (m *Metrics) IngestFailure(stage string) {
	m.ingestFailures.WithLabelValues(stage).Inc()
}

// TierWriteFailure counts a failed write against one tier.
func (m *Metrics) TierWriteFailure(tier string) {
	m.tierWriteFails.WithLabelValues(tier).Inc()
}

// ObserveIngest records the end-to-end processing time of one file.
func (m *Metrics) ObserveIngest(d time.Duration) {
	m.ingestDuration.Observe(d.Seconds())
}

// ObserveQuery records the latency of one read operation.
func (m *Metrics) ObserveQuery(kind string, d time.Duration) {
	m.queryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// TaskQueued tracks queue depth growth.
func (m *Metrics) TaskQueued() { m.queueDepth.Inc() }

// TaskDequeued tracks queue depth shrinkage.
func (m *Metrics) TaskDequeued() { m.queueDepth.Dec() }
