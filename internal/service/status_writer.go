package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/observability"
	"github.com/rami-aouinti/shopware-sub000/internal/queue"
	"github.com/rami-aouinti/shopware-sub000/internal/repository"
)

// TimestampPrecision is the precision lastModified tokens are compared at.
const TimestampPrecision = time.Millisecond

// StatusChangeRequest asks to move an order to a new status under optimistic locking.
type StatusChangeRequest struct {
	OrderID              string
	Status               domain.OrderStatus
	ExpectedLastModified time.Time
	Actor                string
	Reason               string
	Source               string
}

// StatusWriter sets order statuses without holding locks across requests: a write only lands
// if the caller saw the latest version of the order.
type StatusWriter struct {
	orders    repository.OrderRepository
	publisher queue.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewStatusWriter(orders repository.OrderRepository, publisher queue.Publisher, logger *zap.Logger) (*StatusWriter, error) {
	if orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusWriter{
		orders:    orders,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (w *StatusWriter) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// NormalizeTimestamp brings a lastModified value to the compared precision in UTC.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// UpdateOrderStatus writes the status, stamps actor and time and appends a pending entry to the
// order's retry queue. A stale or vanished order yields a *domain.ConflictError.
func (w *StatusWriter) UpdateOrderStatus(ctx context.Context, req StatusChangeRequest) (*domain.Order, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	if !req.Status.IsWritable() {
		return nil, fmt.Errorf("%w: status %d cannot be written", domain.ErrValidation, int(req.Status))
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	if req.ExpectedLastModified.IsZero() {
		return nil, fmt.Errorf("%w: expectedLastModified is required", domain.ErrValidation)
	}

	logger := observability.WithContextLogger(w.logger, ctx).With(
		zap.String("orderId", orderID),
		zap.String("actor", actor),
	)

	order, err := w.orders.GetStatusSnapshot(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, w.conflict(logger, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	stored := NormalizeTimestamp(order.UpdatedAt)
	if !NormalizeTimestamp(req.ExpectedLastModified).Equal(stored) {
		return nil, w.conflict(logger, &stored)
	}

	now := NormalizeTimestamp(w.now())
	if !now.After(stored) {
		// The new version must be distinguishable from the one it replaces.
		now = stored.Add(TimestampPrecision)
	}

	entry := domain.RetryQueueEntry{
		ID:           w.newID(),
		TargetStatus: req.Status,
		Reason:       strings.TrimSpace(req.Reason),
		Source:       strings.TrimSpace(req.Source),
		Attempts:     0,
		State:        domain.RetryQueueStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	retryQueue := make([]domain.RetryQueueEntry, 0, len(order.RetryQueue)+1)
	retryQueue = append(retryQueue, order.RetryQueue...)
	retryQueue = append(retryQueue, entry)

	updated, err := w.orders.UpdateStatusIfUnmodified(ctx, orderID, order.UpdatedAt, repository.OrderStatusChange{
		Status:     req.Status,
		ChangedBy:  actor,
		UpdatedAt:  now,
		RetryQueue: retryQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !updated {
		// Lost the race between read and write; report what is stored now.
		current, err := w.orders.GetStatusSnapshot(ctx, orderID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, w.conflict(logger, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reload order after conflict: %w", err)
		}
		currentAt := NormalizeTimestamp(current.UpdatedAt)
		return nil, w.conflict(logger, &currentAt)
	}

	order.Status = req.Status
	order.StatusChangedBy = actor
	order.UpdatedAt = now
	order.RetryQueue = retryQueue

	logger.Info("order status updated",
		zap.Int("status", int(req.Status)),
		zap.String("source", entry.Source),
		zap.String("retryEntryId", entry.ID),
	)

	w.requestExport(ctx, logger, order, entry)

	return order, nil
}

func (w *StatusWriter) conflict(logger *zap.Logger, current *time.Time) error {
	if w.metrics != nil {
		w.metrics.IncStatusConflict()
	}
	if current == nil {
		logger.Info("order status write rejected: order no longer exists")
		return &domain.ConflictError{Exists: false}
	}
	logger.Info("order status write rejected: stale lastModified", zap.Time("currentLastModified", *current))
	return &domain.ConflictError{Exists: true, CurrentUpdatedAt: current}
}

func (w *StatusWriter) requestExport(ctx context.Context, logger *zap.Logger, order *domain.Order, entry domain.RetryQueueEntry) {
	if w.publisher == nil {
		return
	}

	correlationID, ok := observability.CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = observability.NewCorrelationID()
	}

	msg := queue.ExportMessage{
		OrderID:       order.ID,
		CorrelationID: correlationID,
		Reason:        fmt.Sprintf("status %s (%s)", order.Status, entry.ID),
	}
	if err := w.publisher.Publish(ctx, queue.ExportQueue, msg); err != nil {
		logger.Error("failed to publish export request",
			zap.String("queue", queue.ExportQueue),
			zap.Error(err),
		)
	}
}
