package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/observability"
	"github.com/rami-aouinti/shopware-sub000/internal/service"
	"github.com/rami-aouinti/shopware-sub000/internal/transport"
)

func TestOrderIntegration_ExportOrder(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	exports := &stubExportService{
		exportFn: func(ctx context.Context, orderID string, isRetry bool) (*domain.ExportRecord, error) {
			if isRetry {
				t.Fatal("HTTP export must not be flagged as retry")
			}
			correlationID, _ := observability.CorrelationIDFromContext(ctx)
			switch orderID {
			case "o1":
				return &domain.ExportRecord{ID: "e1", OrderID: "o1", Status: domain.ExportStatusSent, Strategy: domain.StrategyDirectPost, CorrelationID: correlationID, CreatedAt: sentAt, UpdatedAt: sentAt}, nil
			case "o2":
				next := sentAt.Add(domain.RetryBackoffStep)
				msg := "mainframe transport error: timeout"
				record := &domain.ExportRecord{ID: "e2", OrderID: "o2", Status: domain.ExportStatusRetryScheduled, Attempts: 1, LastError: &msg, NextRetryAt: &next}
				return record, fmt.Errorf("%w: timeout", service.ErrDeliveryFailed)
			case "o3":
				return nil, fmt.Errorf("%w: export of order o3 is already running", domain.ErrConflict)
			default:
				return nil, domain.ErrNotFound
			}
		},
	}
	app := newOrderTestApp(t, exports, &stubStatusService{}, &stubExternalOrderReader{})

	resp, body := performRequestWithHeader(t, app, http.MethodPost, "/v1/orders/o1/export", "", transport.HeaderCorrelationID, "corr-http")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var sent map[string]any
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if sent["status"] != "sent" || sent["exportId"] != "e1" || sent["correlationId"] != "corr-http" {
		t.Fatalf("response = %v", sent)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/orders/o2/export", "")
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want 502, body=%s", resp.StatusCode, string(body))
	}
	var failed map[string]any
	if err := json.Unmarshal(body, &failed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if failed["status"] != "retry_scheduled" || failed["nextRetryAt"] == nil {
		t.Fatalf("response = %v, want persisted retry record", failed)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/orders/o3/export", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 while locked", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/orders/unknown/export", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOrderIntegration_GetExportStatus(t *testing.T) {
	t.Parallel()

	code := 0
	exports := &stubExportService{
		statusFn: func(_ context.Context, orderID string) (domain.ExportStatusView, error) {
			if orderID != "o1" {
				return domain.ExportStatusView{}, domain.ErrNotFound
			}
			return domain.ExportStatusView{ExportID: "e9", OrderID: "o1", Status: domain.ExportStatusSent, Strategy: domain.StrategySignedURLPull, ResponseCode: &code}, nil
		},
	}
	app := newOrderTestApp(t, exports, &stubStatusService{}, &stubExternalOrderReader{})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/orders/o1/export-status", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var view map[string]any
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if view["exportId"] != "e9" || view["strategy"] != "signed_url_pull" || view["responseCode"] != float64(0) {
		t.Fatalf("response = %v", view)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/orders/o2/export-status", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for order without exports", resp.StatusCode)
	}
}

func TestOrderIntegration_UpdateStatus(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(3 * time.Second)

	statuses := &stubStatusService{
		updateFn: func(ctx context.Context, req service.StatusChangeRequest) (*domain.Order, error) {
			if req.Source != statusSourceAPI {
				t.Fatalf("source = %q, want api", req.Source)
			}
			switch req.OrderID {
			case "o1":
				if !req.ExpectedLastModified.Equal(t1) || req.Actor != "alice" || req.Status != domain.OrderStatusReleased {
					t.Fatalf("request = %+v", req)
				}
				return &domain.Order{ID: "o1", Status: req.Status, StatusChangedBy: req.Actor, UpdatedAt: t2}, nil
			case "stale":
				return nil, &domain.ConflictError{Exists: true, CurrentUpdatedAt: &t2}
			case "gone":
				return nil, &domain.ConflictError{Exists: false}
			default:
				return nil, domain.ErrNotFound
			}
		},
	}
	app := newOrderTestApp(t, &stubExportService{}, statuses, &stubExternalOrderReader{})

	valid := `{"status":8,"expectedLastModified":"2026-05-04T10:00:00Z","actor":"alice","reason":"released by ops"}`

	resp, body := performRequest(t, app, http.MethodPut, "/v1/orders/o1/status", valid)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var updated map[string]any
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if updated["status"] != float64(8) || updated["statusName"] != "released" || updated["lastModified"] != "2026-05-04T10:00:03Z" {
		t.Fatalf("response = %v", updated)
	}

	resp, body = performRequest(t, app, http.MethodPut, "/v1/orders/stale/status", valid)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", resp.StatusCode, string(body))
	}
	var conflict map[string]any
	if err := json.Unmarshal(body, &conflict); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if conflict["exists"] != true || conflict["currentLastModified"] != "2026-05-04T10:00:03Z" {
		t.Fatalf("conflict = %v", conflict)
	}

	resp, body = performRequest(t, app, http.MethodPut, "/v1/orders/gone/status", valid)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	conflict = map[string]any{}
	if err := json.Unmarshal(body, &conflict); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if conflict["exists"] != false || conflict["currentLastModified"] != nil {
		t.Fatalf("conflict = %v, want vanished record", conflict)
	}

	invalid := []string{
		`{"status":5,"expectedLastModified":"2026-05-04T10:00:00Z","actor":"alice"}`,
		`{"status":8,"actor":"alice"}`,
		`{"status":9,"expectedLastModified":"2026-05-04T10:00:00Z"}`,
		`not json`,
	}
	for _, payload := range invalid {
		resp, _ = performRequest(t, app, http.MethodPut, "/v1/orders/o1/status", payload)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("status = %d, want 400 for %s", resp.StatusCode, payload)
		}
	}
}

func TestOrderIntegration_ProcessRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	exports := &stubExportService{
		retriesFn: func(context.Context) (service.RetryRunSummary, error) {
			calls++
			if calls > 1 {
				return service.RetryRunSummary{}, errors.New("db unavailable")
			}
			return service.RetryRunSummary{Due: 3, Claimed: 2, Skipped: 1, Sent: 1, Failed: 1}, nil
		},
	}
	app := newOrderTestApp(t, exports, &stubStatusService{}, &stubExternalOrderReader{})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/exports/retries", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var summary map[string]float64
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if summary["due"] != 3 || summary["skipped"] != 1 || summary["sent"] != 1 {
		t.Fatalf("summary = %v", summary)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/exports/retries", "")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if strings.Contains(string(body), "db unavailable") {
		t.Fatalf("internal error leaked: %s", string(body))
	}
}

func TestOrderIntegration_SignedDocumentIsUniform(t *testing.T) {
	t.Parallel()

	exports := &stubExportService{
		documentFn: func(_ context.Context, token string) ([]byte, error) {
			if token == "good" {
				return []byte(`<Auftrag><Nr>1</Nr></Auftrag>`), nil
			}
			return nil, domain.ErrNotFound
		},
	}
	app := newOrderTestApp(t, exports, &stubStatusService{}, &stubExternalOrderReader{})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/exports/documents/good", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationXML) {
		t.Fatalf("content type = %q, want xml", resp.Header.Get(fiber.HeaderContentType))
	}
	if string(body) != `<Auftrag><Nr>1</Nr></Auftrag>` {
		t.Fatalf("body = %s", string(body))
	}

	_, expiredBody := performRequest(t, app, http.MethodGet, "/v1/exports/documents/expired", "")
	resp, tamperedBody := performRequest(t, app, http.MethodGet, "/v1/exports/documents/tampered", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if !bytes.Equal(expiredBody, tamperedBody) {
		t.Fatalf("rejections differ: %s vs %s", expiredBody, tamperedBody)
	}
}

func TestOrderIntegration_GetExternalOrder(t *testing.T) {
	t.Parallel()

	external := &stubExternalOrderReader{
		getFn: func(_ context.Context, externalID string) (*domain.ExternalOrder, error) {
			if externalID != "A-1" {
				return nil, domain.ErrNotFound
			}
			return &domain.ExternalOrder{
				ExternalID:   "A-1",
				CustomerName: "Ada",
				Total:        12.5,
				Payload:      domain.CanonicalOrderPayload{ExternalID: "A-1"},
			}, nil
		},
	}
	app := newOrderTestApp(t, &stubExportService{}, &stubStatusService{}, external)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/external-orders/A-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var order map[string]any
	if err := json.Unmarshal(body, &order); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if order["customerName"] != "Ada" || order["total"] != 12.5 {
		t.Fatalf("response = %v", order)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/external-orders/B-2", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNewOrderHandlerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewOrderHandler(nil, &stubStatusService{}, &stubExternalOrderReader{}); err == nil {
		t.Fatal("expected error when export service is nil")
	}
	if _, err := NewOrderHandler(&stubExportService{}, nil, &stubExternalOrderReader{}); err == nil {
		t.Fatal("expected error when status service is nil")
	}
	if _, err := NewOrderHandler(&stubExportService{}, &stubStatusService{}, nil); err == nil {
		t.Fatal("expected error when external order reader is nil")
	}
}

type stubExportService struct {
	exportFn   func(ctx context.Context, orderID string, isRetry bool) (*domain.ExportRecord, error)
	statusFn   func(ctx context.Context, orderID string) (domain.ExportStatusView, error)
	retriesFn  func(ctx context.Context) (service.RetryRunSummary, error)
	documentFn func(ctx context.Context, token string) ([]byte, error)
}

func (s *stubExportService) ExportOrder(ctx context.Context, orderID string, isRetry bool) (*domain.ExportRecord, error) {
	if s.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.exportFn(ctx, orderID, isRetry)
}

func (s *stubExportService) GetLatestExportStatus(ctx context.Context, orderID string) (domain.ExportStatusView, error) {
	if s.statusFn == nil {
		return domain.ExportStatusView{}, errors.New("not implemented")
	}
	return s.statusFn(ctx, orderID)
}

func (s *stubExportService) ProcessRetries(ctx context.Context) (service.RetryRunSummary, error) {
	if s.retriesFn == nil {
		return service.RetryRunSummary{}, errors.New("not implemented")
	}
	return s.retriesFn(ctx)
}

func (s *stubExportService) ServeSignedDocument(ctx context.Context, token string) ([]byte, error) {
	if s.documentFn == nil {
		return nil, domain.ErrNotFound
	}
	return s.documentFn(ctx, token)
}

type stubStatusService struct {
	updateFn func(ctx context.Context, req service.StatusChangeRequest) (*domain.Order, error)
}

func (s *stubStatusService) UpdateOrderStatus(ctx context.Context, req service.StatusChangeRequest) (*domain.Order, error) {
	if s.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return s.updateFn(ctx, req)
}

type stubExternalOrderReader struct {
	getFn func(ctx context.Context, externalID string) (*domain.ExternalOrder, error)
}

func (s *stubExternalOrderReader) GetExternalOrder(ctx context.Context, externalID string) (*domain.ExternalOrder, error) {
	if s.getFn == nil {
		return nil, domain.ErrNotFound
	}
	return s.getFn(ctx, externalID)
}

func newOrderTestApp(t *testing.T, exports ExportService, statuses StatusService, external ExternalOrderReader) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(transport.CorrelationID())

	if err := RegisterOrderRoutes(app, exports, statuses, external); err != nil {
		t.Fatalf("RegisterOrderRoutes() error = %v", err)
	}

	return app
}

func performRequestWithHeader(t *testing.T, app *fiber.App, method, path, body, key, value string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(key, value)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, PostgresCheck(sql.OpenDB(stubConnector{})), RedisCheck(newStubRedisClient(nil)))

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, PostgresCheck(sqlDB), RedisCheck(rdb), PingerCheck("rabbitmq", stubPinger{}))

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 503 when dependencies down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{pingErr: errors.New("postgres down")})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(errors.New("redis down"))
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, PostgresCheck(sqlDB), RedisCheck(rdb), PingerCheck("rabbitmq", stubPinger{err: errors.New("closed")}))

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
		var parsed struct {
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("json unmarshal error = %v", err)
		}
		for _, name := range []string{"postgres", "redis", "rabbitmq"} {
			if parsed.Checks[name] != "down" {
				t.Fatalf("%s = %q, want down", name, parsed.Checks[name])
			}
		}
	})
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") {
			if h.pingErr != nil {
				cmd.SetErr(h.pingErr)
				return h.pingErr
			}
			cmd.SetErr(nil)
			return nil
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
