// Package observability holds the Prometheus collectors of the service.
package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	sitesLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sites_load_total",
			Help: "Site dataset load attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sitesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sites_loaded",
			Help: "Number of sites in the loaded dataset.",
		},
	)

	siteQueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_query_total",
			Help: "Site query evaluations by kind (empty, filter, literal).",
		},
		[]string{"kind"},
	)

	siteQueryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "site_query_duration_seconds",
			Help:    "Time spent evaluating a site query.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		},
	)

	siteQueryResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "site_query_results",
			Help:    "Number of searched sites per evaluated query.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by cache and outcome.",
		},
		[]string{"cache", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	selectionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selection_events_total",
			Help: "Single-site selection events by outcome.",
		},
		[]string{"outcome"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_notifications_total",
			Help: "Notifications published by the site collection.",
		},
		[]string{"topic"},
	)

	invalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidations_total",
			Help: "Processed invalidation events by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	invalidatedKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invalidated_keys_total",
			Help: "Cache keys deleted by invalidation events.",
		},
	)

	invalidationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invalidation_duration_seconds",
			Help:    "Time spent handling one invalidation event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	kafkaConsumerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	renderDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sites_render_duration_seconds",
			Help:    "Time spent encoding a sites response by format.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"format"},
	)

	renderedFeaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sites_rendered_features_total",
			Help: "Sites encoded into responses by format.",
		},
		[]string{"format"},
	)

	hotSites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hot_sites",
			Help: "Number of sites tracked by the popularity tracker.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		sitesLoadTotal, sitesLoaded,
		siteQueryTotal, siteQueryDurationSeconds, siteQueryResults,
		cacheResults, cacheOpTotal, redisOpDurationSeconds,
		selectionEventsTotal, notificationsTotal,
		invalidationsTotal, invalidatedKeysTotal, invalidationDurationSeconds, kafkaConsumerErrorsTotal,
		renderDurationSeconds, renderedFeaturesTotal,
		hotSites, buildInfo,
	}
}

// Init registers the collectors with reg. Observations are always recorded;
// when disabled they are simply never exported.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveSitesLoad(n int, err error) {
	if err != nil {
		sitesLoadTotal.WithLabelValues("error").Inc()
		return
	}
	sitesLoadTotal.WithLabelValues("ok").Inc()
	sitesLoaded.Set(float64(n))
}

// ObserveQuery records one evaluation; kind is "empty", "filter" or "literal".
func ObserveQuery(kind string, results int, durationSeconds float64) {
	siteQueryTotal.WithLabelValues(kind).Inc()
	siteQueryDurationSeconds.Observe(durationSeconds)
	siteQueryResults.Observe(float64(results))
}

func IncCacheHit(cache string) {
	cacheResults.WithLabelValues(cache, "hit").Inc()
}

func IncCacheMiss(cache string) {
	cacheResults.WithLabelValues(cache, "miss").Inc()
}

func IncCacheError(cache string) {
	cacheResults.WithLabelValues(cache, "error").Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncSelectionEvent(outcome string) {
	selectionEventsTotal.WithLabelValues(outcome).Inc()
}

func IncNotification(topic string) {
	notificationsTotal.WithLabelValues(topic).Inc()
}

func ObserveInvalidation(op string, keys int, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	invalidationsTotal.WithLabelValues(op, outcome).Inc()
	invalidatedKeysTotal.Add(float64(keys))
	invalidationDurationSeconds.Observe(d.Seconds())
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrorsTotal.WithLabelValues(kind).Inc()
}

func ObserveRender(format string, features int, durationSeconds float64) {
	renderDurationSeconds.WithLabelValues(format).Observe(durationSeconds)
	renderedFeaturesTotal.WithLabelValues(format).Add(float64(features))
}

func SetHotSites(n int) {
	hotSites.Set(float64(n))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
