package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_sync"

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	exportsSentTotal     *prometheus.CounterVec
	exportsFailedTotal   *prometheus.CounterVec
	exportSendDuration   *prometheus.HistogramVec
	retryScheduledTotal  *prometheus.CounterVec
	deadLettersTotal     *prometheus.CounterVec
	workerInflight       *prometheus.GaugeVec
	importedOrdersTotal  *prometheus.CounterVec
	statusConflictsTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		exportsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_sent_total",
				Help:      "Total number of order exports accepted by the mainframe.",
			},
			[]string{"strategy"},
		),
		exportsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_failed_total",
				Help:      "Total number of export attempts that failed, by reason.",
			},
			[]string{"strategy", "reason"},
		),
		exportSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_send_duration_seconds",
				Help:      "Mainframe send duration in seconds grouped by strategy.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"strategy"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_retry_scheduled_total",
				Help:      "Total number of exports scheduled for retry.",
			},
			[]string{"strategy"},
		),
		deadLettersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_dead_letters_total",
				Help:      "Total number of exports that exhausted their retry budget.",
			},
			[]string{"strategy"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_inflight",
				Help:      "Current number of in-flight worker operations grouped by loop.",
			},
			[]string{"loop"},
		),
		importedOrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_orders_total",
				Help:      "Total number of mainframe orders seen by the import, by result.",
			},
			[]string{"result"},
		),
		statusConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_status_conflicts_total",
				Help:      "Total number of status writes rejected by the optimistic lock.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.exportsSentTotal,
		m.exportsFailedTotal,
		m.exportSendDuration,
		m.retryScheduledTotal,
		m.deadLettersTotal,
		m.workerInflight,
		m.importedOrdersTotal,
		m.statusConflictsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncExportSent(strategy string) {
	if m == nil {
		return
	}
	m.exportsSentTotal.WithLabelValues(normalizeLabel(strategy)).Inc()
}

func (m *Metrics) IncExportFailed(strategy string, reason string) {
	if m == nil {
		return
	}
	m.exportsFailedTotal.WithLabelValues(normalizeLabel(strategy), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveExportSendDuration(strategy string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.exportSendDuration.WithLabelValues(normalizeLabel(strategy)).Observe(seconds)
}

func (m *Metrics) IncRetryScheduled(strategy string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(strategy)).Inc()
}

func (m *Metrics) IncDeadLetter(strategy string) {
	if m == nil {
		return
	}
	m.deadLettersTotal.WithLabelValues(normalizeLabel(strategy)).Inc()
}

func (m *Metrics) IncWorkerInFlight(loop string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(loop)).Inc()
}

func (m *Metrics) DecWorkerInFlight(loop string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(loop)).Dec()
}

// AddImported counts imported orders; result is "upserted", "invalid" or "failed".
func (m *Metrics) AddImported(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedOrdersTotal.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}

func (m *Metrics) IncStatusConflict() {
	if m == nil {
		return
	}
	m.statusConflictsTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
