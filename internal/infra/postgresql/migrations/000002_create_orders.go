package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rami-aouinti/shopware-sub000/internal/repository"
)

func createOrdersTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_orders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.OrderModel{},
				&repository.OrderAddressModel{},
				&repository.OrderLineItemModel{},
				&repository.OrderAttachmentModel{},
			); err != nil {
				return err
			}
			return execAll(tx, []string{
				`ALTER TABLE orders ALTER COLUMN retry_queue SET DEFAULT '[]'::jsonb`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_order_addresses_order_kind ON order_addresses (order_id, kind)`,
				`CREATE INDEX IF NOT EXISTS idx_order_line_items_order_position ON order_line_items (order_id, position)`,
				`CREATE INDEX IF NOT EXISTS idx_order_attachments_order ON order_attachments (order_id)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.OrderAttachmentModel{},
				&repository.OrderLineItemModel{},
				&repository.OrderAddressModel{},
				&repository.OrderModel{},
			)
		},
	}
}
