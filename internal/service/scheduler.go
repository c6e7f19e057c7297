package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultImportInterval = 5 * time.Minute

// OrderImporter runs one inbound import cycle.
type OrderImporter interface {
	ImportOrders(ctx context.Context) (ImportSummary, error)
}

// ImportScheduler periodically pulls orders from the mainframe.
type ImportScheduler struct {
	importer OrderImporter
	logger   *zap.Logger
	interval time.Duration
}

func NewImportScheduler(importer OrderImporter, interval time.Duration, logger *zap.Logger) (*ImportScheduler, error) {
	if importer == nil {
		return nil, fmt.Errorf("order importer is required")
	}
	if interval <= 0 {
		interval = defaultImportInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ImportScheduler{
		importer: importer,
		logger:   logger,
		interval: interval,
	}, nil
}

func (s *ImportScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("import scheduler initial run failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("import scheduler run failed", zap.Error(err))
			}
		}
	}
}

func (s *ImportScheduler) runOnce(ctx context.Context) error {
	_, err := s.importer.ImportOrders(ctx)
	return err
}
