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

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, caching and
// the assessment window engine.
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

	accessDecisions    *prometheus.CounterVec
	reschedules        *prometheus.CounterVec
	nullified          prometheus.Counter
	instancesCreated   prometheus.Counter
	generationRuns     *prometheus.CounterVec
	generationDuration prometheus.Observer
	sweepDuration      prometheus.Observer
	incompleteMarked   *prometheus.CounterVec

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

	accessDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assessment_access_decisions_total",
		Help: "Access checks by resulting status",
	}, []string{"status"})

	reschedules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assessment_reschedules_total",
		Help: "Reschedule operations by action",
	}, []string{"action"})

	nullified := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submission_nullified_total",
		Help: "Submissions nullified for being made before their window opened",
	})

	instancesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assessment_instances_created_total",
		Help: "Shuffled assessment instances minted",
	})

	generationRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_generation_runs_total",
		Help: "Weekly generation runs by outcome",
	}, []string{"outcome"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_generation_duration_seconds",
		Help:    "Duration of weekly generation runs",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "submission_sweep_duration_seconds",
		Help:    "Duration of submission validation sweeps",
		Buckets: prometheus.DefBuckets,
	})

	incompleteMarked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_incomplete_marked_total",
		Help: "Progress records marked incomplete by reason",
	}, []string{"reason"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		accessDecisions, reschedules, nullified, instancesCreated, generationRuns, generationDuration, sweepDuration,
		incompleteMarked, goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		accessDecisions:    accessDecisions,
		reschedules:        reschedules,
		nullified:          nullified,
		instancesCreated:   instancesCreated,
		generationRuns:     generationRuns,
		generationDuration: generationDuration,
		sweepDuration:      sweepDuration,
		incompleteMarked:   incompleteMarked,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAccessDecision counts an access check outcome.
func (m *MetricsService) RecordAccessDecision(status string) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(status).Inc()
}

// RecordReschedule counts reschedule actions: created, cancelled or rejected.
func (m *MetricsService) RecordReschedule(action string) {
	if m == nil {
		return
	}
	m.reschedules.WithLabelValues(action).Inc()
}

// RecordNullification adds n nullified submissions.
func (m *MetricsService) RecordNullification(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.nullified.Add(float64(n))
}

// RecordInstancesCreated adds n minted assessment instances.
func (m *MetricsService) RecordInstancesCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.instancesCreated.Add(float64(n))
}

// ObserveGeneration records a weekly generation run.
func (m *MetricsService) ObserveGeneration(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.generationRuns.WithLabelValues(outcome).Inc()
	m.generationDuration.Observe(duration.Seconds())
}

// ObserveSweep records a submission validation sweep.
func (m *MetricsService) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordIncompleteMarked adds n records marked incomplete for reason.
func (m *MetricsService) RecordIncompleteMarked(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.incompleteMarked.WithLabelValues(reason).Add(float64(n))
}
