package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/observability"
	"github.com/rami-aouinti/shopware-sub000/internal/queue"
)

const minWorkerConcurrency = 1

// OrderExporter exports one order to the mainframe.
type OrderExporter interface {
	ExportOrder(ctx context.Context, orderID string, isRetry bool) (*domain.ExportRecord, error)
}

// ExportWorker consumes export requests raised by status changes.
type ExportWorker struct {
	consumer    queue.Consumer
	exporter    OrderExporter
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
}

func NewExportWorker(consumer queue.Consumer, exporter OrderExporter, concurrency int, logger *zap.Logger) (*ExportWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if exporter == nil {
		return nil, fmt.Errorf("order exporter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExportWorker{
		consumer:    consumer,
		exporter:    exporter,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *ExportWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the export queue until context cancellation.
func (w *ExportWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("export worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.ExportQueue),
			)

			if err := w.consumer.Consume(groupCtx, queue.ExportQueue, w.processMessage); err != nil {
				w.logger.Error("export worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("export worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// processMessage acks everything the export pipeline already recorded or can never handle;
// only infrastructure errors are returned so the delivery is redelivered.
func (w *ExportWorker) processMessage(ctx context.Context, msg queue.ExportMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(w.logger, ctx).With(zap.String("orderId", msg.OrderID))

	if w.metrics != nil {
		w.metrics.IncWorkerInFlight("export_worker")
		defer w.metrics.DecWorkerInFlight("export_worker")
	}

	record, err := w.exporter.ExportOrder(ctx, msg.OrderID, false)
	switch {
	case err == nil:
		logger.Info("export request processed",
			zap.String("exportId", record.ID),
			zap.String("status", record.Status.String()),
		)
		return nil
	case errors.Is(err, ErrDeliveryFailed):
		// Persisted with a scheduled retry; the retry scanner owns it from here.
		return nil
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("export request for unknown order, skipping")
		return nil
	case errors.Is(err, domain.ErrConflict):
		logger.Info("export already in progress for order, skipping")
		return nil
	case errors.Is(err, domain.ErrValidation):
		logger.Warn("order cannot be exported", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("failed to export order %s: %w", msg.OrderID, err)
	}
}
