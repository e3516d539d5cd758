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

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the scheduling domain.
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

	swapRequests          *prometheus.CounterVec
	swapsExecuted         prometheus.Counter
	schedulesPublished    prometheus.Counter
	schedulesUnpublished  prometheus.Counter
	unavailabilityCreated prometheus.Counter

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

	swapRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_requests_total",
		Help: "Swap requests created, by execution mode",
	}, []string{"mode"})

	swapsExecuted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swaps_executed_total",
		Help: "Swap requests that reached APPROVED and mutated assignments",
	})

	schedulesPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedules_published_total",
		Help: "Unit schedules published",
	})

	schedulesUnpublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedules_unpublished_total",
		Help: "Unit schedules reverted to draft",
	})

	unavailabilityCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unavailability_records_created_total",
		Help: "Unavailability records created, manual and generated",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio,
		cacheHits, cacheMisses, swapRequests, swapsExecuted, schedulesPublished, schedulesUnpublished,
		unavailabilityCreated, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:              registry,
		handler:               handler,
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		cacheLatency:          cacheLatency,
		cacheWrite:            cacheWrite,
		cacheHitRatio:         cacheHitRatio,
		cacheHits:             cacheHits,
		cacheMisses:           cacheMisses,
		swapRequests:          swapRequests,
		swapsExecuted:         swapsExecuted,
		schedulesPublished:    schedulesPublished,
		schedulesUnpublished:  schedulesUnpublished,
		unavailabilityCreated: unavailabilityCreated,
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

// ObserveCacheWrite tracks the duration for cache set operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSwapRequested counts a new swap request by execution mode.
func (m *MetricsService) RecordSwapRequested(mode string) {
	if m == nil {
		return
	}
	m.swapRequests.WithLabelValues(mode).Inc()
}

// RecordSwapExecuted counts a swap that mutated assignments.
func (m *MetricsService) RecordSwapExecuted() {
	if m == nil {
		return
	}
	m.swapsExecuted.Inc()
}

// RecordSchedulePublished counts a unit publication.
func (m *MetricsService) RecordSchedulePublished() {
	if m == nil {
		return
	}
	m.schedulesPublished.Inc()
}

// RecordScheduleUnpublished counts a unit reverting to draft.
func (m *MetricsService) RecordScheduleUnpublished() {
	if m == nil {
		return
	}
	m.schedulesUnpublished.Inc()
}

// RecordUnavailabilityCreated counts created unavailability records.
func (m *MetricsService) RecordUnavailabilityCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unavailabilityCreated.Add(float64(n))
}
