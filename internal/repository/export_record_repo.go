package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

type ExportRecordRepository interface {
	Create(ctx context.Context, r *domain.ExportRecord) error
	Update(ctx context.Context, r *domain.ExportRecord) error
	GetByID(ctx context.Context, id string) (*domain.ExportRecord, error)
	GetLatestByOrderID(ctx context.Context, orderID string) (*domain.ExportRecord, error)
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.ExportRecord, error)
	ClaimForRetry(ctx context.Context, id string, now time.Time) (bool, error)
}

type GormExportRecordRepo struct {
	db *gorm.DB
}

func NewGormExportRecordRepo(db *gorm.DB) *GormExportRecordRepo {
	return &GormExportRecordRepo{db: db}
}

func (r *GormExportRecordRepo) Create(ctx context.Context, record *domain.ExportRecord) error {
	model := exportRecordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *exportRecordModelToDomain(model)
	}
	return nil
}

// Update writes every mutable column of the record.
func (r *GormExportRecordRepo) Update(ctx context.Context, record *domain.ExportRecord) error {
	if record == nil {
		return domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Model(&ExportRecordModel{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"status":           record.Status,
			"attempts":         record.Attempts,
			"request_payload":  record.RequestPayload,
			"response_code":    record.ResponseCode,
			"response_message": record.ResponseMessage,
			"last_error":       record.LastError,
			"next_retry_at":    record.NextRetryAt,
			"updated_at":       record.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormExportRecordRepo) GetByID(ctx context.Context, id string) (*domain.ExportRecord, error) {
	var model ExportRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return exportRecordModelToDomain(&model), nil
}

// GetLatestByOrderID returns the most recently created record; concurrent exports resolve last-write-wins.
func (r *GormExportRecordRepo) GetLatestByOrderID(ctx context.Context, orderID string) (*domain.ExportRecord, error) {
	var model ExportRecordModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return exportRecordModelToDomain(&model), nil
}

// GetDueForRetry returns scheduled records whose time has come and processing records whose claim
// lease ran out, oldest first.
func (r *GormExportRecordRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.ExportRecord, error) {
	var models []ExportRecordModel
	err := r.db.WithContext(ctx).
		Where(dueForRetry(r.db, now)).
		Order("COALESCE(next_retry_at, updated_at) ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.ExportRecord, 0, len(models))
	for i := range models {
		records = append(records, *exportRecordModelToDomain(&models[i]))
	}

	return records, nil
}

// ClaimForRetry leases a due record by moving it to processing and restarting its lease. It reports
// false when another scheduler instance claimed it first.
func (r *GormExportRecordRepo) ClaimForRetry(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ExportRecordModel{}).
		Where("id = ?", id).
		Where(dueForRetry(r.db, now)).
		Updates(map[string]any{
			"status":        domain.ExportStatusProcessing,
			"next_retry_at": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func dueForRetry(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("attempts < ?", domain.MaxExportAttempts).
		Where(db.Where("status = ? AND next_retry_at <= ?", domain.ExportStatusRetryScheduled, now).
			Or("status = ? AND updated_at <= ?", domain.ExportStatusProcessing, now.Add(-domain.ClaimLease)))
}
