package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/mainframe"
	"github.com/rami-aouinti/shopware-sub000/internal/observability"
	"github.com/rami-aouinti/shopware-sub000/internal/payload"
	"github.com/rami-aouinti/shopware-sub000/internal/queue"
	"github.com/rami-aouinti/shopware-sub000/internal/ratelimit"
	"github.com/rami-aouinti/shopware-sub000/internal/repository"
	"github.com/rami-aouinti/shopware-sub000/internal/sanitize"
)

const (
	retryBatchSize       = 20
	documentPath         = "/v1/exports/documents/"
	defaultLockTTL       = 15 * time.Minute
	lockTTLGrace         = 30 * time.Second
	deadLetterReason     = "retry budget exhausted"
	failureTransport     = "transport"
	failureProtocol      = "protocol"
	failureRejected      = "rejected"
	failureNotConfigured = "not_configured"
	failureLeaseExpired  = "lease_expired"
)

// ErrDeliveryFailed wraps transport failures returned by ExportOrder after the record was persisted
// and a retry scheduled.
var ErrDeliveryFailed = errors.New("export delivery failed")

var errClaimLeaseExpired = errors.New("delivery abandoned: claim lease expired")

// MainframeSender delivers order documents to the mainframe.
type MainframeSender interface {
	SendByDirectPost(ctx context.Context, baseURL, authToken string, xmlBody []byte, timeout time.Duration, writeFunction string) (string, error)
	SendBySignedURLPull(ctx context.Context, baseURL, authToken, callbackURL string, timeout time.Duration, writeFunction string) (string, error)
}

// TokenSigner mints and verifies signed pull URL tokens.
type TokenSigner interface {
	Mint(exportRecordID string) (string, error)
	Verify(token string) (string, error)
}

// ExportSettings carries the per-environment export configuration.
type ExportSettings struct {
	BaseURL       string
	AuthToken     string
	WriteFunction string
	Timeout       time.Duration
	Strategy      domain.Strategy
	PublicBaseURL string
	LockTTL       time.Duration
}

// RetryRunSummary reports one ProcessRetries batch.
type RetryRunSummary struct {
	Due     int
	Claimed int
	Skipped int
	Sent    int
	Failed  int
}

type ExportService struct {
	orders    repository.OrderRepository
	exports   repository.ExportRecordRepository
	sender    MainframeSender
	signer    TokenSigner
	locker    ratelimit.Locker
	limiter   ratelimit.RateLimiter
	publisher queue.Publisher
	metrics   *observability.Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
	settings  ExportSettings
	now       func() time.Time
	newID     func() string
}

func NewExportService(
	orders repository.OrderRepository,
	exports repository.ExportRecordRepository,
	sender MainframeSender,
	signer TokenSigner,
	locker ratelimit.Locker,
	limiter ratelimit.RateLimiter,
	settings ExportSettings,
	logger *zap.Logger,
) (*ExportService, error) {
	if orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if exports == nil {
		return nil, fmt.Errorf("export record repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mainframe sender is required")
	}
	if settings.Strategy == "" {
		settings.Strategy = domain.StrategyDirectPost
	}
	if !settings.Strategy.IsValid() {
		return nil, fmt.Errorf("%w: invalid export strategy %q", domain.ErrValidation, settings.Strategy)
	}
	if settings.Strategy == domain.StrategySignedURLPull && signer == nil {
		return nil, fmt.Errorf("token signer is required for %s", settings.Strategy)
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = defaultLockTTL
		if settings.Timeout > 0 {
			settings.LockTTL = 2*settings.Timeout + lockTTLGrace
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExportService{
		orders:   orders,
		exports:  exports,
		sender:   sender,
		signer:   signer,
		locker:   locker,
		limiter:  limiter,
		tracer:   otel.Tracer("mainframe-order-sync/service"),
		logger:   logger,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

func (s *ExportService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetPublisher enables dead-letter notifications for permanently failed exports.
func (s *ExportService) SetPublisher(publisher queue.Publisher) {
	if s == nil {
		return
	}
	s.publisher = publisher
}

// ExportOrder builds the order document, opens a new export record and delivers it.
// Business rejections and protocol errors are persisted and scheduled for retry with a nil error;
// transport failures are persisted the same way and then returned wrapped in ErrDeliveryFailed.
func (s *ExportService) ExportOrder(ctx context.Context, orderID string, isRetry bool) (*domain.ExportRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	release, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	document, err := payload.BuildOrderDocument(*order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	attempts := 0
	if isRetry {
		attempts = 1
	}

	ctx, correlationID := observability.EnsureCorrelationID(ctx)
	now := s.now()
	record := &domain.ExportRecord{
		ID:             s.newID(),
		OrderID:        orderID,
		Status:         domain.ExportStatusProcessing,
		Strategy:       s.settings.Strategy,
		Attempts:       attempts,
		RequestPayload: string(document),
		CorrelationID:  correlationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.exports.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create export record: %w", err)
	}

	return record, s.deliver(ctx, record)
}

// ProcessRetries re-delivers due records. A failing record never aborts the batch.
func (s *ExportService) ProcessRetries(ctx context.Context) (RetryRunSummary, error) {
	var summary RetryRunSummary

	due, err := s.exports.GetDueForRetry(ctx, s.now(), retryBatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch due retries: %w", err)
	}
	summary.Due = len(due)

	for i := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		record := due[i]
		sent, claimed, err := s.retryRecord(ctx, &record)
		switch {
		case err != nil:
			summary.Failed++
			s.logger.Warn("export retry failed",
				zap.String("exportId", record.ID),
				zap.String("orderId", record.OrderID),
				zap.String("correlationId", record.CorrelationID),
				zap.String("error", sanitize.Mask(err.Error())),
			)
		case !claimed:
			summary.Skipped++
		case sent:
			summary.Claimed++
			summary.Sent++
		default:
			summary.Claimed++
		}
	}

	if summary.Due > 0 {
		s.logger.Info("export retry batch processed",
			zap.Int("due", summary.Due),
			zap.Int("claimed", summary.Claimed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("sent", summary.Sent),
			zap.Int("failed", summary.Failed),
		)
	}

	return summary, nil
}

func (s *ExportService) retryRecord(ctx context.Context, record *domain.ExportRecord) (sent bool, claimed bool, err error) {
	release, err := s.lockOrder(ctx, record.OrderID)
	if errors.Is(err, domain.ErrConflict) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	defer release()

	claimed, err = s.exports.ClaimForRetry(ctx, record.ID, s.now())
	if err != nil {
		return false, false, fmt.Errorf("failed to claim export record: %w", err)
	}
	if !claimed {
		return false, false, nil
	}

	if record.Status == domain.ExportStatusProcessing {
		return false, true, s.failAbandoned(ctx, record)
	}

	record.Status = domain.ExportStatusProcessing
	record.NextRetryAt = nil
	if err := s.deliver(ctx, record); err != nil {
		return false, true, err
	}
	return record.Status == domain.ExportStatusSent, true, nil
}

// GetLatestExportStatus returns the projection of the newest record of an order.
func (s *ExportService) GetLatestExportStatus(ctx context.Context, orderID string) (domain.ExportStatusView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ExportStatusView{}, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	record, err := s.exports.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		return domain.ExportStatusView{}, err
	}
	return record.View(), nil
}

// ServeSignedDocument resolves a pull token to the stored request document. Every rejection,
// whether malformed, expired or unknown, is reported as domain.ErrNotFound.
func (s *ExportService) ServeSignedDocument(ctx context.Context, token string) ([]byte, error) {
	if s.signer == nil {
		return nil, domain.ErrNotFound
	}

	exportID, err := s.signer.Verify(token)
	if err != nil {
		s.logger.Debug("signed document rejected", zap.Error(err))
		return nil, domain.ErrNotFound
	}

	record, err := s.exports.GetByID(ctx, exportID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load export record: %w", err)
	}
	if record.RequestPayload == "" {
		return nil, domain.ErrNotFound
	}

	return []byte(record.RequestPayload), nil
}

func (s *ExportService) deliver(ctx context.Context, record *domain.ExportRecord) error {
	ctx = observability.WithCorrelationID(ctx, record.CorrelationID)
	ctx, span := s.tracer.Start(ctx, "ExportOrder", trace.WithAttributes(
		attribute.String("order.id", record.OrderID),
		attribute.String("export.id", record.ID),
		attribute.String("correlation.id", record.CorrelationID),
		attribute.Int("export.attempts", record.Attempts),
	))
	defer span.End()

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("orderId", record.OrderID),
		zap.String("exportId", record.ID),
		zap.String("strategy", record.Strategy.String()),
	)
	strategy := record.Strategy.String()

	if s.metrics != nil {
		s.metrics.IncWorkerInFlight("export")
		defer s.metrics.DecWorkerInFlight("export")
	}

	start := time.Now()
	response, sendErr := s.send(ctx, record)
	if s.metrics != nil {
		s.metrics.ObserveExportSendDuration(strategy, time.Since(start))
	}

	if sendErr != nil {
		span.SetStatus(codes.Error, "delivery failed")
		record.LastError = sanitize.MaskPtr(sendErr.Error())
		if err := s.fail(ctx, logger, record, failureTransport); err != nil {
			return err
		}
		logger.Error("export delivery failed",
			zap.String("error", *record.LastError),
			zap.Bool("transient", mainframe.IsTransient(sendErr)),
			zap.String("status", record.Status.String()),
		)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, sendErr)
	}

	result, parseErr := mainframe.ParseResult(response)
	if parseErr != nil {
		reason := failureProtocol
		if strings.TrimSpace(response) == "" {
			reason = failureNotConfigured
		}
		span.SetStatus(codes.Error, "unreadable response")
		record.LastError = sanitize.MaskPtr(parseErr.Error())
		if err := s.fail(ctx, logger, record, reason); err != nil {
			return err
		}
		logger.Warn("export response unreadable", zap.String("error", *record.LastError))
		return nil
	}

	code := result.Code
	record.ResponseCode = &code
	if result.Message != "" {
		message := result.Message
		record.ResponseMessage = &message
	}

	if result.OK() {
		record.Status = domain.ExportStatusSent
		record.LastError = nil
		record.NextRetryAt = nil
		record.UpdatedAt = s.now()
		if err := s.exports.Update(ctx, record); err != nil {
			return fmt.Errorf("failed to persist sent export: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncExportSent(strategy)
		}
		logger.Info("order exported", zap.Int("responseCode", code), zap.Int("attempts", record.Attempts))
		return nil
	}

	span.SetStatus(codes.Error, "rejected")
	record.LastError = sanitize.MaskPtr(fmt.Sprintf("mainframe rejected export: code %d: %s", code, result.Message))
	if err := s.fail(ctx, logger, record, failureRejected); err != nil {
		return err
	}
	logger.Warn("export rejected by mainframe",
		zap.Int("responseCode", code),
		zap.String("responseMessage", sanitize.Mask(result.Message)),
		zap.String("status", record.Status.String()),
	)
	return nil
}

func (s *ExportService) send(ctx context.Context, record *domain.ExportRecord) (string, error) {
	ctx, span := s.tracer.Start(ctx, "mainframe.send", trace.WithAttributes(
		attribute.String("order.id", record.OrderID),
		attribute.String("correlation.id", record.CorrelationID),
		attribute.String("export.strategy", record.Strategy.String()),
	))
	defer span.End()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ratelimit.ScopeMainframe); err != nil {
			return "", fmt.Errorf("mainframe rate limiter: %w", err)
		}
	}

	switch record.Strategy {
	case domain.StrategySignedURLPull:
		if s.signer == nil {
			return "", errors.New("token signer is not configured")
		}
		token, err := s.signer.Mint(record.ID)
		if err != nil {
			return "", fmt.Errorf("failed to mint transfer token: %w", err)
		}
		return s.sender.SendBySignedURLPull(ctx, s.settings.BaseURL, s.settings.AuthToken,
			s.documentURL(token), s.settings.Timeout, s.settings.WriteFunction)
	default:
		return s.sender.SendByDirectPost(ctx, s.settings.BaseURL, s.settings.AuthToken,
			[]byte(record.RequestPayload), s.settings.Timeout, s.settings.WriteFunction)
	}
}

// fail persists the failed outcome and applies the retry transition.
func (s *ExportService) fail(ctx context.Context, logger *zap.Logger, record *domain.ExportRecord, reason string) error {
	strategy := record.Strategy.String()
	if s.metrics != nil {
		s.metrics.IncExportFailed(strategy, reason)
	}

	record.Status = domain.ExportStatusFailed
	record.UpdatedAt = s.now()
	if err := s.exports.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to persist failed export: %w", err)
	}

	return s.scheduleRetry(ctx, logger, record)
}

// failAbandoned closes a delivery whose claim lease ran out without an outcome. Its fate at the
// mainframe is unknown, so it is not resent now but goes through the normal failure transition.
func (s *ExportService) failAbandoned(ctx context.Context, record *domain.ExportRecord) error {
	ctx = observability.WithCorrelationID(ctx, record.CorrelationID)
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("orderId", record.OrderID),
		zap.String("exportId", record.ID),
		zap.String("strategy", record.Strategy.String()),
	)

	lastError := errClaimLeaseExpired.Error()
	record.LastError = &lastError
	if err := s.fail(ctx, logger, record, failureLeaseExpired); err != nil {
		return err
	}
	logger.Warn("abandoned export reclaimed", zap.String("status", record.Status.String()))
	return nil
}

func (s *ExportService) scheduleRetry(ctx context.Context, logger *zap.Logger, record *domain.ExportRecord) error {
	record.ScheduleRetry(s.now(), record.LastError)
	if err := s.exports.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to schedule export retry: %w", err)
	}

	strategy := record.Strategy.String()
	if record.Status == domain.ExportStatusFailedPermanent {
		if s.metrics != nil {
			s.metrics.IncDeadLetter(strategy)
		}
		logger.Error("export failed permanently", zap.Int("attempts", record.Attempts))
		s.publishDeadLetter(ctx, logger, record)
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncRetryScheduled(strategy)
	}
	logger.Info("export retry scheduled",
		zap.Int("attempts", record.Attempts),
		zap.Timep("nextRetryAt", record.NextRetryAt),
	)
	return nil
}

func (s *ExportService) publishDeadLetter(ctx context.Context, logger *zap.Logger, record *domain.ExportRecord) {
	if s.publisher == nil {
		return
	}

	failedAt := record.UpdatedAt
	msg := queue.ExportMessage{
		OrderID:       record.OrderID,
		ExportID:      record.ID,
		CorrelationID: record.CorrelationID,
		Reason:        deadLetterReason,
		Attempts:      record.Attempts,
		Strategy:      record.Strategy.String(),
		ResponseCode:  record.ResponseCode,
		FailedAt:      &failedAt,
	}
	if record.LastError != nil {
		msg.LastError = *record.LastError
	}
	if record.ResponseMessage != nil {
		msg.ResponseMessage = sanitize.Mask(*record.ResponseMessage)
	}

	if err := s.publisher.Publish(ctx, queue.ExportDLQ, msg); err != nil {
		logger.Error("failed to publish export dead letter",
			zap.String("queue", queue.ExportDLQ),
			zap.String("error", sanitize.Mask(err.Error())),
		)
	}
}

func (s *ExportService) lockOrder(ctx context.Context, orderID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	unlock, err := s.locker.Acquire(ctx, "export:"+orderID, s.settings.LockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return nil, fmt.Errorf("%w: export of order %s already in progress", domain.ErrConflict, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}

	return func() {
		// The caller's context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			s.logger.Warn("failed to release export lock", zap.String("orderId", orderID), zap.Error(err))
		}
	}, nil
}

func (s *ExportService) documentURL(token string) string {
	return strings.TrimRight(s.settings.PublicBaseURL, "/") + documentPath + url.PathEscape(token)
}
