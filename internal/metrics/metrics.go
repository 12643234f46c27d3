package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/intakehub/internal/logger"
)

// Collector owns a private registry with the service's counters. It
// satisfies the recorder interfaces of the rules, workflow and notify
// packages.
type Collector struct {
	registry        *prometheus.Registry
	ruleEvaluations *prometheus.CounterVec
	evalDuration    prometheus.Histogram
	workflowRuns    *prometheus.CounterVec
	runDuration     prometheus.Histogram
	publishes       *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	logger          *slog.Logger
}

func NewCollector(l *slog.Logger) *Collector {
	if l == nil {
		l = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		ruleEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Rule evaluations by outcome (matched, no_match)",
		}, []string{"outcome"}),
		evalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rule_evaluation_duration_seconds",
			Help:    "Time taken to resolve the winning rule",
			Buckets: prometheus.DefBuckets,
		}),
		workflowRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Workflow runs by outcome",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_run_duration_seconds",
			Help:    "Time taken to run a workflow",
			Buckets: prometheus.DefBuckets,
		}),
		publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_publishes_total",
			Help: "Publish attempts by result (accepted, rejected)",
		}, []string{"result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Workflow side effects delivered by kind and status",
		}, []string{"kind", "status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		logger: l,
	}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "log_warnings_total",
		Help: "Warning records logged, counted before sampling",
	}, func() float64 { return float64(logger.TotalWarnings.Load()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "log_errors_total",
		Help: "Error records logged, counted before sampling",
	}, func() float64 { return float64(logger.TotalErrors.Load()) })

	return c
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordRuleEvaluation(outcome string, duration time.Duration) {
	c.ruleEvaluations.WithLabelValues(outcome).Inc()
	c.evalDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordWorkflowRun(outcome string, duration time.Duration) {
	c.workflowRuns.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordPublish(result string) {
	c.publishes.WithLabelValues(result).Inc()
}

func (c *Collector) RecordNotification(kind, status string) {
	c.notifications.WithLabelValues(kind, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests and observes their latency.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			c.logger.Error("request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status))
		}
	})
}
