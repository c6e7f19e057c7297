package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

// OrderStatusChange is the full set of columns a status write touches.
type OrderStatusChange struct {
	Status     domain.OrderStatus
	ChangedBy  string
	UpdatedAt  time.Time
	RetryQueue []domain.RetryQueueEntry
}

type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetStatusSnapshot(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatusIfUnmodified(ctx context.Context, id string, expectedUpdatedAt time.Time, change OrderStatusChange) (bool, error)
}

type GormOrderRepo struct {
	db *gorm.DB
}

func NewGormOrderRepo(db *gorm.DB) *GormOrderRepo {
	return &GormOrderRepo{db: db}
}

// GetByID loads the order with addresses, line items and attachments.
func (r *GormOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).
		Preload("Addresses").
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Attachments").
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return orderModelToDomain(&model)
}

// GetStatusSnapshot loads the order row only; enough for a status write.
func (r *GormOrderRepo) GetStatusSnapshot(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return orderModelToDomain(&model)
}

// UpdateStatusIfUnmodified writes the change only while updated_at still equals expectedUpdatedAt.
// It reports false when the row was modified or deleted in between.
func (r *GormOrderRepo) UpdateStatusIfUnmodified(ctx context.Context, id string, expectedUpdatedAt time.Time, change OrderStatusChange) (bool, error) {
	queue, err := encodeRetryQueue(change.RetryQueue)
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND updated_at = ?", id, expectedUpdatedAt).
		Updates(map[string]any{
			"status":            int(change.Status),
			"status_changed_by": change.ChangedBy,
			"retry_queue":       queue,
			"updated_at":        change.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
