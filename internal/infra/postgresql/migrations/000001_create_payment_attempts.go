package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"gorm.io/gorm"
)

func createPaymentAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_payment_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PaymentAttemptModel{}); err != nil {
				return err
			}
			if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_attempts_idempotency_key ON payment_attempts (idempotency_key) WHERE idempotency_key IS NOT NULL`).Error; err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_payment_attempts_status_created ON payment_attempts (status, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PaymentAttemptModel{})
		},
	}
}
