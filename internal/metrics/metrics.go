// Package metrics exposes Prometheus counters for the speech pipeline. A nil
// *Recorder is valid and records nothing, so components never need to check.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagecast"

// Recorder holds the collectors for one process.
type Recorder struct {
	registry *prometheus.Registry

	cacheLookups   *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheBytes     prometheus.Gauge
	synthesis      *prometheus.CounterVec
	prefetch       *prometheus.CounterVec
	joins          prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Speech cache lookups by result.",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries dropped by the cache policy.",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Bytes of audio currently held by the cache.",
		}),
		synthesis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "requests_total",
			Help:      "Synthesis requests by engine and outcome.",
		}, []string{"engine", "outcome"}),
		prefetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "decisions_total",
			Help:      "Prefetch decisions by result.",
		}, []string{"result"}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "foreground_joins_total",
			Help:      "Foreground requests served by an in-flight task.",
		}),
	}

	r.registry.MustRegister(
		r.cacheLookups,
		r.cacheEvictions,
		r.cacheBytes,
		r.synthesis,
		r.prefetch,
		r.joins,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// CacheLookup records a hit or miss.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
}

// CacheEvicted records n evictions.
func (r *Recorder) CacheEvicted(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.cacheEvictions.Add(float64(n))
}

// CacheSize sets the current cache size in bytes.
func (r *Recorder) CacheSize(bytes int64) {
	if r == nil {
		return
	}
	r.cacheBytes.Set(float64(bytes))
}

// Synthesis records one synthesis request outcome ("ok", "error", "skipped").
func (r *Recorder) Synthesis(engine, outcome string) {
	if r == nil {
		return
	}
	r.synthesis.WithLabelValues(engine, outcome).Inc()
}

// Prefetch records a prefetch decision such as "launched", "cached",
// "inflight", "empty", "failed" or "stored".
func (r *Recorder) Prefetch(result string) {
	if r == nil {
		return
	}
	r.prefetch.WithLabelValues(result).Inc()
}

// Join records a foreground request that attached to an in-flight task.
func (r *Recorder) Join() {
	if r == nil {
		return
	}
	r.joins.Inc()
}
