package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultRetryScanInterval = time.Minute

// RetryProcessor re-delivers export records whose retry is due.
type RetryProcessor interface {
	ProcessRetries(ctx context.Context) (RetryRunSummary, error)
}

// RetryScanner periodically processes due export retries.
type RetryScanner struct {
	processor RetryProcessor
	logger    *zap.Logger
	interval  time.Duration
}

func NewRetryScanner(processor RetryProcessor, interval time.Duration, logger *zap.Logger) (*RetryScanner, error) {
	if processor == nil {
		return nil, fmt.Errorf("retry processor is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		processor: processor,
		logger:    logger,
		interval:  interval,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	summary, err := s.processor.ProcessRetries(ctx)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		s.logger.Warn("retry scan finished with failures",
			zap.Int("due", summary.Due),
			zap.Int("failed", summary.Failed),
		)
	}
	return nil
}
