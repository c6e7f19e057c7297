package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rami-aouinti/shopware-sub000/internal/repository"
)

func createExternalOrdersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_external_orders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ExternalOrderModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_external_orders_order_number ON external_orders (order_number)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ExternalOrderModel{})
		},
	}
}
