package scoreboardmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	scoreboardcache "github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/cache"
	"github.com/Black-And-White-Club/quiscore/app/modules/scoreboard/infrastructure/scorestore"
)

const (
	namespace          = "quiscore"
	handlerServiceName = "ScoreboardHandlers"
)

// CacheStatsSource is satisfied by *scoreboardcache.Cache.
type CacheStatsSource interface {
	Stats() scoreboardcache.Stats
}

// StoreStatsSource is satisfied by *scorestore.Accessor.
type StoreStatsSource interface {
	Stats() scorestore.Stats
}

type promMetrics struct {
	opAttempts   *prometheus.CounterVec
	opSuccesses  *prometheus.CounterVec
	opFailures   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	computeTime  prometheus.Histogram
	batchSize    prometheus.Histogram
	refreshes    *prometheus.CounterVec
	streamsOpen  prometheus.Gauge
	streamsTotal *prometheus.CounterVec
	streamLife   prometheus.Histogram
}

// NewPrometheus registers scoreboard metrics on reg. cache and store may be
// nil; when set their Stats are exported as gauges and counters.
func NewPrometheus(reg prometheus.Registerer, cache CacheStatsSource, store StoreStatsSource) ScoreboardMetrics {
	m := &promMetrics{
		opAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "operation_attempts_total",
			Help: "Service operations started.",
		}, []string{"operation", "service"}),
		opSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "operation_successes_total",
			Help: "Service operations completed without infrastructure error.",
		}, []string{"operation", "service"}),
		opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "operation_failures_total",
			Help: "Service operations that returned an error or panicked.",
		}, []string{"operation", "service"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "operation_duration_seconds",
			Help:    "Service operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "cache_lookups_total",
			Help: "Request-path cache reads by result.",
		}, []string{"result"}),
		computeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "computation_duration_seconds",
			Help:    "Time to compute a batch of scoreboards from the score store.",
			Buckets: prometheus.DefBuckets,
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "computation_batch_size",
			Help:    "Events fetched per computation.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "refresh_triggers_total",
			Help: "Forced recomputes by source.",
		}, []string{"source"}),
		streamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "streams_open",
			Help: "Open server-sent event streams.",
		}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "streams_total",
			Help: "Stream lifecycle events by outcome.",
		}, []string{"outcome"}),
		streamLife: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scoreboard", Name: "stream_lifetime_seconds",
			Help:    "How long streams stayed open.",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),
	}

	reg.MustRegister(
		m.opAttempts, m.opSuccesses, m.opFailures, m.opDuration,
		m.cacheLookups, m.computeTime, m.batchSize, m.refreshes,
		m.streamsOpen, m.streamsTotal, m.streamLife,
	)

	if cache != nil {
		registerCacheCollectors(reg, cache)
	}
	if store != nil {
		registerStoreCollectors(reg, store)
	}
	return m
}

func registerCacheCollectors(reg prometheus.Registerer, cache CacheStatsSource) {
	gauge := func(name, help string, fn func(scoreboardcache.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scoreboard_cache", Name: name, Help: help,
		}, func() float64 { return fn(cache.Stats()) })
	}
	counter := func(name, help string, fn func(scoreboardcache.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoreboard_cache", Name: name, Help: help,
		}, func() float64 { return float64(fn(cache.Stats())) })
	}

	reg.MustRegister(
		gauge("entries", "Cached events.", func(s scoreboardcache.Stats) float64 { return float64(s.Entries) }),
		gauge("subscribers", "Live subscribers across events.", func(s scoreboardcache.Stats) float64 { return float64(s.Subscribers) }),
		gauge("hit_ratio", "Cache hit ratio since start.", func(s scoreboardcache.Stats) float64 { return s.HitRate }),
		counter("hits_total", "Cache hits.", func(s scoreboardcache.Stats) uint64 { return s.Hits }),
		counter("misses_total", "Cache misses.", func(s scoreboardcache.Stats) uint64 { return s.Misses }),
		counter("evictions_total", "Entries removed by expiry or LRU.", func(s scoreboardcache.Stats) uint64 { return s.Evictions }),
		counter("deliveries_total", "Snapshots delivered to subscribers.", func(s scoreboardcache.Stats) uint64 { return s.Deliveries }),
		counter("fanout_failures_total", "Subscribers removed after a failed delivery.", func(s scoreboardcache.Stats) uint64 { return s.FanOutFailures }),
	)
}

func registerStoreCollectors(reg prometheus.Registerer, store StoreStatsSource) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "score_store", Name: "in_flight",
			Help: "Queries currently executing.",
		}, func() float64 { return float64(store.Stats().InFlight) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "score_store", Name: "waiting",
			Help: "Queries waiting for a concurrency slot.",
		}, func() float64 { return float64(store.Stats().Waiting) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "score_store", Name: "retries_total",
			Help: "Query attempts that were retried.",
		}, func() float64 { return float64(store.Stats().Retries) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "score_store", Name: "failures_total",
			Help: "Queries that failed after all attempts.",
		}, func() float64 { return float64(store.Stats().Failures) }),
	)
}

func (m *promMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.opAttempts.WithLabelValues(operation, service).Inc()
}

func (m *promMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.opSuccesses.WithLabelValues(operation, service).Inc()
}

func (m *promMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.opFailures.WithLabelValues(operation, service).Inc()
}

func (m *promMetrics) RecordOperationDuration(_ context.Context, operation, service string, d time.Duration) {
	m.opDuration.WithLabelValues(operation, service).Observe(d.Seconds())
}

func (m *promMetrics) RecordCacheLookup(_ context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *promMetrics) RecordComputation(_ context.Context, batchSize int, d time.Duration) {
	m.computeTime.Observe(d.Seconds())
	m.batchSize.Observe(float64(batchSize))
}

func (m *promMetrics) RecordRefreshTrigger(_ context.Context, source string) {
	m.refreshes.WithLabelValues(source).Inc()
}

func (m *promMetrics) RecordHandlerAttempt(ctx context.Context, handlerName string) {
	m.RecordOperationAttempt(ctx, handlerName, handlerServiceName)
}

func (m *promMetrics) RecordHandlerSuccess(ctx context.Context, handlerName string) {
	m.RecordOperationSuccess(ctx, handlerName, handlerServiceName)
}

func (m *promMetrics) RecordHandlerFailure(ctx context.Context, handlerName string) {
	m.RecordOperationFailure(ctx, handlerName, handlerServiceName)
}

func (m *promMetrics) RecordHandlerDuration(ctx context.Context, handlerName string, d time.Duration) {
	m.RecordOperationDuration(ctx, handlerName, handlerServiceName, d)
}

func (m *promMetrics) RecordStreamOpened(_ context.Context) {
	m.streamsOpen.Inc()
	m.streamsTotal.WithLabelValues("opened").Inc()
}

func (m *promMetrics) RecordStreamClosed(_ context.Context, reason string, lifetime time.Duration) {
	m.streamsOpen.Dec()
	m.streamsTotal.WithLabelValues("closed_" + reason).Inc()
	m.streamLife.Observe(lifetime.Seconds())
}

func (m *promMetrics) RecordStreamRejected(_ context.Context) {
	m.streamsTotal.WithLabelValues("rejected").Inc()
}
