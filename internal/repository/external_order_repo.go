package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

type ExternalOrderRepository interface {
	Upsert(ctx context.Context, o *domain.ExternalOrder) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.ExternalOrder, error)
}

type GormExternalOrderRepo struct {
	db *gorm.DB
}

func NewGormExternalOrderRepo(db *gorm.DB) *GormExternalOrderRepo {
	return &GormExternalOrderRepo{db: db}
}

// Upsert inserts the order or refreshes it, keeping the first imported_at.
func (r *GormExternalOrderRepo) Upsert(ctx context.Context, o *domain.ExternalOrder) error {
	model, err := externalOrderModelFromDomain(o)
	if err != nil {
		return err
	}
	if model == nil {
		return domain.ErrValidation
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"order_number", "customer_name", "customer_email", "total", "payload", "updated_at"}),
		}).
		Create(model).Error
}

func (r *GormExternalOrderRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.ExternalOrder, error) {
	var model ExternalOrderModel
	err := r.db.WithContext(ctx).First(&model, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return externalOrderModelToDomain(&model)
}
