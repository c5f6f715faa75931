package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the editor API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	uploadDuration  prometheus.Observer
	ledgerJobs      *prometheus.HistogramVec
	commitTotal     *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	uploadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_upload_duration_seconds",
		Help:    "End-to-end duration of media uploads including processing wait",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	ledgerJobs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_job_duration_seconds",
		Help:    "Duration of ledger write jobs from submission to resolution",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"kind", "outcome"})

	commitTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commits_total",
		Help: "Total commit runs by final status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, uploadDuration, ledgerJobs, commitTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		uploadDuration:  uploadDuration,
		ledgerJobs:      ledgerJobs,
		commitTotal:     commitTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveUpload tracks one media upload from job creation to ready/failed.
func (m *MetricsService) ObserveUpload(duration time.Duration) {
	if m == nil || m.uploadDuration == nil {
		return
	}
	m.uploadDuration.Observe(duration.Seconds())
}

// ObserveLedgerJob tracks one write job by kind and outcome.
func (m *MetricsService) ObserveLedgerJob(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerJobs.WithLabelValues(kind, outcome).Observe(duration.Seconds())
}

// RecordCommit counts a finished commit run by final status.
func (m *MetricsService) RecordCommit(status string) {
	if m == nil {
		return
	}
	m.commitTotal.WithLabelValues(status).Inc()
}
