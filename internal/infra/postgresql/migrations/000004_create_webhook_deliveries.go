package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"gorm.io/gorm"
)

func createWebhookDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_webhook_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookDeliveryModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_webhook_created ON webhook_deliveries (webhook_id, created_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookDeliveryModel{})
		},
	}
}
