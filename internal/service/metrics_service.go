package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the gateway
// and the sync engine. It satisfies the recorder interfaces declared by
// the store, sync and schedule packages.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	storeMutations *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	syncEvents     *prometheus.CounterVec
	syncFailures   *prometheus.CounterVec

	projectionDuration prometheus.Histogram
	projectionEvents   prometheus.Histogram
	dataQuality        *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
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

	storeMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_mutations_total",
		Help: "Mutations applied to the normalized store",
	}, []string{"entity", "op"})

	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_errors_total",
		Help: "Rejected records and recorded stream errors per entity",
	}, []string{"entity"})

	syncEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_events_total",
		Help: "Change events pumped from the document store",
	}, []string{"entity", "op"})

	syncFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_stream_failures_total",
		Help: "Entity streams that failed to open or terminated with an error",
	}, []string{"entity"})

	projectionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_projection_duration_seconds",
		Help:    "Time spent rebuilding a schedule projection",
		Buckets: prometheus.DefBuckets,
	})

	projectionEvents := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_projection_events",
		Help:    "Events produced per schedule projection",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	dataQuality := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "data_quality_exclusions_total",
		Help: "Records excluded from derived views for data quality reasons",
	}, []string{"entity", "reason"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache lookups served from Redis",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache lookups that fell through to the source",
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		storeMutations, storeErrors, syncEvents, syncFailures,
		projectionDuration, projectionEvents, dataQuality,
		cacheHits, cacheMisses,
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		storeMutations:     storeMutations,
		storeErrors:        storeErrors,
		syncEvents:         syncEvents,
		syncFailures:       syncFailures,
		projectionDuration: projectionDuration,
		projectionEvents:   projectionEvents,
		dataQuality:        dataQuality,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler { return m.handler }

// ObserveRequest records one HTTP request.
func (m *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveStoreMutation implements the store's recorder.
func (m *MetricsService) ObserveStoreMutation(entity, op string) {
	m.storeMutations.WithLabelValues(entity, op).Inc()
}

// ObserveStoreError implements the store's recorder.
func (m *MetricsService) ObserveStoreError(entity string) {
	m.storeErrors.WithLabelValues(entity).Inc()
}

// ObserveSyncEvent implements the sync manager's recorder.
func (m *MetricsService) ObserveSyncEvent(entity, op string) {
	m.syncEvents.WithLabelValues(entity, op).Inc()
}

// ObserveSyncFailure implements the sync manager's recorder.
func (m *MetricsService) ObserveSyncFailure(entity string) {
	m.syncFailures.WithLabelValues(entity).Inc()
}

// ObserveProjection implements the projector's recorder.
func (m *MetricsService) ObserveProjection(events int, duration time.Duration) {
	m.projectionDuration.Observe(duration.Seconds())
	m.projectionEvents.Observe(float64(events))
}

// ObserveDataQuality implements the projector's recorder.
func (m *MetricsService) ObserveDataQuality(entity, reason string) {
	m.dataQuality.WithLabelValues(entity, reason).Inc()
}

// CacheHit records a cache hit.
func (m *MetricsService) CacheHit() { m.cacheHits.Inc() }

// CacheMiss records a cache miss.
func (m *MetricsService) CacheMiss() { m.cacheMisses.Inc() }
