package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExportCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncExportSent("Direct_Post")
	metrics.IncExportFailed("direct_post", "transport")
	metrics.IncExportFailed("direct_post", "")
	metrics.ObserveExportSendDuration("direct_post", 120*time.Millisecond)
	metrics.IncWorkerInFlight("export_worker")
	metrics.DecWorkerInFlight("export_worker")
	metrics.IncRetryScheduled("direct_post")
	metrics.IncDeadLetter("signed_url_pull")
	metrics.AddImported("upserted", 3)
	metrics.AddImported("invalid", 0)
	metrics.IncStatusConflict()

	if got := testutil.ToFloat64(metrics.exportsSentTotal.WithLabelValues("direct_post")); got != 1 {
		t.Fatalf("exports_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.exportsFailedTotal.WithLabelValues("direct_post", "transport")); got != 1 {
		t.Fatalf("exports_failed_total{transport} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.exportsFailedTotal.WithLabelValues("direct_post", "unknown")); got != 1 {
		t.Fatalf("exports_failed_total{unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("direct_post")); got != 1 {
		t.Fatalf("export_retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deadLettersTotal.WithLabelValues("signed_url_pull")); got != 1 {
		t.Fatalf("export_dead_letters_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("export_worker")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.importedOrdersTotal.WithLabelValues("upserted")); got != 3 {
		t.Fatalf("imported_orders_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.statusConflictsTotal); got != 1 {
		t.Fatalf("order_status_conflicts_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncExportSent("direct_post")
	metrics.IncExportFailed("direct_post", "protocol")
	metrics.IncDeadLetter("direct_post")
	metrics.IncStatusConflict()
	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
