package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"gorm.io/gorm"
)

func createWebhooksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_webhooks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_webhooks_store_active ON webhooks (store_id, is_active) WHERE deleted_at IS NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookModel{})
		},
	}
}
