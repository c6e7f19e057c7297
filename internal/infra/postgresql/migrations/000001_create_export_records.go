package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rami-aouinti/shopware-sub000/internal/repository"
)

func createExportRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_export_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ExportRecordModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_export_records_order_created ON export_records (order_id, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_export_records_retry_due ON export_records (next_retry_at) WHERE status = 'retry_scheduled'`,
				`CREATE INDEX IF NOT EXISTS idx_export_records_correlation_id ON export_records (correlation_id)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ExportRecordModel{})
		},
	}
}
