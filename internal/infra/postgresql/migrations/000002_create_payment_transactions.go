package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"gorm.io/gorm"
)

func createPaymentTransactionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_payment_transactions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PaymentTransactionModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_payment_transactions_attempt_type ON payment_transactions (attempt_id, type)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PaymentTransactionModel{})
		},
	}
}
