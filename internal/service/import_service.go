package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/observability"
	"github.com/rami-aouinti/shopware-sub000/internal/payload"
	"github.com/rami-aouinti/shopware-sub000/internal/ratelimit"
	"github.com/rami-aouinti/shopware-sub000/internal/repository"
	"github.com/rami-aouinti/shopware-sub000/internal/sanitize"
)

const importLockKey = "import:mainframe"

// OrderFetcher reads the mainframe's order list.
type OrderFetcher interface {
	FetchOrders(ctx context.Context, baseURL, authToken string, timeout time.Duration, readFunction string) ([]map[string]any, error)
}

type ImportSettings struct {
	BaseURL      string
	AuthToken    string
	ReadFunction string
	Timeout      time.Duration
	LockTTL      time.Duration
}

// ImportSummary reports one import cycle.
type ImportSummary struct {
	Fetched  int
	Upserted int
	Invalid  int
	Failed   int
	Skipped  bool
}

// ImportService pulls orders entered on the mainframe into the external_orders table.
type ImportService struct {
	fetcher  OrderFetcher
	external repository.ExternalOrderRepository
	locker   ratelimit.Locker
	limiter  ratelimit.RateLimiter
	metrics  *observability.Metrics
	logger   *zap.Logger
	settings ImportSettings
	now      func() time.Time
}

func NewImportService(
	fetcher OrderFetcher,
	external repository.ExternalOrderRepository,
	locker ratelimit.Locker,
	limiter ratelimit.RateLimiter,
	settings ImportSettings,
	logger *zap.Logger,
) (*ImportService, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("order fetcher is required")
	}
	if external == nil {
		return nil, fmt.Errorf("external order repository is required")
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ImportService{
		fetcher:  fetcher,
		external: external,
		locker:   locker,
		limiter:  limiter,
		logger:   logger,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ImportService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// ImportOrders runs one fetch, normalize and upsert cycle. A record that cannot be normalized or
// stored is counted and skipped; only a failed fetch fails the cycle.
func (s *ImportService) ImportOrders(ctx context.Context) (ImportSummary, error) {
	var summary ImportSummary

	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, importLockKey, s.settings.LockTTL)
		if errors.Is(err, ratelimit.ErrLockHeld) {
			summary.Skipped = true
			s.logger.Debug("import skipped: another instance is importing")
			return summary, nil
		}
		if err != nil {
			return summary, fmt.Errorf("failed to acquire import lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release import lock", zap.Error(err))
			}
		}()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, ratelimit.ScopeMainframe); err != nil {
			return summary, fmt.Errorf("mainframe rate limiter: %w", err)
		}
	}

	records, err := s.fetcher.FetchOrders(ctx, s.settings.BaseURL, s.settings.AuthToken, s.settings.Timeout, s.settings.ReadFunction)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AddImported("fetch_failed", 1)
		}
		return summary, fmt.Errorf("failed to fetch mainframe orders: %w", err)
	}
	summary.Fetched = len(records)

	for _, record := range records {
		canonical, err := payload.Normalize(record)
		if err != nil {
			summary.Invalid++
			s.logger.Warn("skipping unreadable mainframe order", zap.String("error", sanitize.Mask(err.Error())))
			continue
		}

		if split := payload.SplitKeys(canonical); len(split) > 0 {
			s.logger.Info("split shipment detected",
				zap.String("externalId", canonical.ExternalID),
				zap.Strings("references", split),
			)
		}

		now := s.now()
		order := &domain.ExternalOrder{
			ExternalID:    canonical.ExternalID,
			OrderNumber:   canonical.OrderNumber,
			CustomerName:  canonical.Customer.Name,
			CustomerEmail: canonical.Customer.Email,
			Total:         canonical.Total,
			Payload:       canonical,
			ImportedAt:    now,
			UpdatedAt:     now,
		}
		if err := s.external.Upsert(ctx, order); err != nil {
			summary.Failed++
			s.logger.Error("failed to store mainframe order",
				zap.String("externalId", canonical.ExternalID),
				zap.Error(err),
			)
			continue
		}
		summary.Upserted++
	}

	if s.metrics != nil {
		s.metrics.AddImported("upserted", summary.Upserted)
		s.metrics.AddImported("invalid", summary.Invalid)
		s.metrics.AddImported("failed", summary.Failed)
	}

	s.logger.Info("mainframe import finished",
		zap.Int("fetched", summary.Fetched),
		zap.Int("upserted", summary.Upserted),
		zap.Int("invalid", summary.Invalid),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// GetExternalOrder returns an imported order by its mainframe id.
func (s *ImportService) GetExternalOrder(ctx context.Context, externalID string) (*domain.ExternalOrder, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", domain.ErrValidation)
	}
	return s.external.GetByExternalID(ctx, externalID)
}
