// Package metrics exposes prometheus instrumentation for the store and the
// stream buffers, plus the /metrics handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
	"github.com/oxbow-io/oxbow/internal/streambuf"
)

var (
	_ pebblestore.MetricsHook = (*Metrics)(nil)
	_ streambuf.Observer      = (*Metrics)(nil)
)

// Metrics implements the store's MetricsHook and the buffers' Observer on
// one registry.
type Metrics struct {
	reg *prometheus.Registry

	writeSeconds  prometheus.Histogram
	readSeconds   prometheus.Histogram
	commitSeconds prometheus.Histogram
	writeBytes    prometheus.Counter
	readBytes     prometheus.Counter

	appendSeconds   prometheus.Histogram
	finalizeSeconds prometheus.Histogram
	appendedEvents  prometheus.Counter
	dedupedEvents   prometheus.Counter
	listeners       prometheus.Gauge
	expiredStreams  prometheus.Counter
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		writeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oxbow", Subsystem: "store", Name: "write_seconds",
			Help:    "Store write latency.",
			Buckets: prometheus.DefBuckets,
		}),
		readSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oxbow", Subsystem: "store", Name: "read_seconds",
			Help:    "Store read latency.",
			Buckets: prometheus.DefBuckets,
		}),
		commitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oxbow", Subsystem: "store", Name: "batch_commit_seconds",
			Help:    "Store batch commit latency.",
			Buckets: prometheus.DefBuckets,
		}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oxbow", Subsystem: "store", Name: "write_bytes_total",
			Help: "Bytes written to the store.",
		}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oxbow", Subsystem: "store", Name: "read_bytes_total",
			Help: "Bytes read from the store.",
		}),
		appendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oxbow", Subsystem: "buffer", Name: "append_seconds",
			Help:    "Buffer append latency.",
			Buckets: prometheus.DefBuckets,
		}),
		finalizeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oxbow", Subsystem: "buffer", Name: "finalize_seconds",
			Help:    "Buffer finalize latency.",
			Buckets: prometheus.DefBuckets,
		}),
		appendedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oxbow", Subsystem: "buffer", Name: "appended_events_total",
			Help: "Events appended after dedup.",
		}),
		dedupedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oxbow", Subsystem: "buffer", Name: "deduped_events_total",
			Help: "Events dropped as duplicates.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oxbow", Subsystem: "buffer", Name: "listeners",
			Help: "Currently attached resume listeners.",
		}),
		expiredStreams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oxbow", Subsystem: "buffer", Name: "expired_streams_total",
			Help: "Streams deleted by retention.",
		}),
	}
	reg.MustRegister(
		m.writeSeconds, m.readSeconds, m.commitSeconds, m.writeBytes, m.readBytes,
		m.appendSeconds, m.finalizeSeconds,
		m.appendedEvents, m.dedupedEvents, m.listeners, m.expiredStreams,
	)
	return m
}

// Handler serves the prometheus exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Store-level hook (pebblestore.MetricsHook).

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeSeconds.Observe(elapsed.Seconds())
	m.writeBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readSeconds.Observe(elapsed.Seconds())
	m.readBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps, bytes int) {
	m.commitSeconds.Observe(elapsed.Seconds())
	m.writeBytes.Add(float64(bytes))
}

// Buffer-level hook (streambuf.Observer).

func (m *Metrics) ObserveAppend(elapsed time.Duration, appended, deduped int) {
	m.appendSeconds.Observe(elapsed.Seconds())
	m.appendedEvents.Add(float64(appended))
	m.dedupedEvents.Add(float64(deduped))
}

func (m *Metrics) ObserveFinalize(elapsed time.Duration) {
	m.finalizeSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ListenerAttached() { m.listeners.Inc() }
func (m *Metrics) ListenerDetached() { m.listeners.Dec() }
func (m *Metrics) StreamExpired()    { m.expiredStreams.Inc() }
