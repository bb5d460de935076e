package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics for the autopost pipeline
type Metrics struct {
	// Post metrics
	PostsScheduled  *prometheus.CounterVec
	PostsPublished  *prometheus.CounterVec
	PostsFailed     *prometheus.CounterVec
	PostsRetried    *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec

	// Scheduler metrics
	TickDuration prometheus.Histogram
	BatchSize    prometheus.Histogram
	DueBacklog   prometheus.Gauge
	TickErrors   prometheus.Counter

	// API metrics
	APIRequestCount    *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
	server *http.Server
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics(logger *zap.Logger) *Metrics {
	return NewMetricsWithRegistry(logger, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers on an explicit registry; tests use
// a fresh one to avoid duplicate registration.
func NewMetricsWithRegistry(logger *zap.Logger, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		logger: logger,

		PostsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_posts_scheduled_total",
			Help: "Total number of posts scheduled for publication",
		}, []string{"platform"}),

		PostsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_posts_published_total",
			Help: "Total number of posts published successfully",
		}, []string{"platform"}),

		PostsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_posts_failed_total",
			Help: "Total number of posts that terminally failed",
		}, []string{"platform"}),

		PostsRetried: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_posts_retried_total",
			Help: "Total number of publish attempts that were retried",
		}, []string{"platform"}),

		PublishDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postpilot_publish_duration_seconds",
			Help:    "Time taken by one publish attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "postpilot_scheduler_tick_duration_seconds",
			Help:    "Time taken by one scheduler tick",
			Buckets: prometheus.DefBuckets,
		}),

		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "postpilot_scheduler_batch_size",
			Help:    "Number of due posts fetched per tick",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),

		DueBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "postpilot_due_backlog",
			Help: "Number of posts currently past their scheduled time",
		}),

		TickErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "postpilot_scheduler_tick_errors_total",
			Help: "Total number of scheduler ticks that failed to fetch a batch",
		}),

		APIRequestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "postpilot_api_requests_total",
			Help: "Total number of API requests",
		}, []string{"method", "path", "status"}),

		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postpilot_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	logger.Info("Prometheus metrics initialized")
	return m
}

// StartServer starts the Prometheus metrics HTTP server
func (m *Metrics) StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{
		Addr:    address,
		Handler: mux,
	}

	m.logger.Info("Starting Prometheus metrics server", zap.String("address", address))
	return m.server.ListenAndServe()
}

// StopServer stops the Prometheus metrics HTTP server
func (m *Metrics) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.logger.Info("Stopping Prometheus metrics server")
	return m.server.Shutdown(ctx)
}

// ObserveAPIRequest records one handled HTTP request
func (m *Metrics) ObserveAPIRequest(method, path string, status int, duration time.Duration) {
	m.APIRequestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
