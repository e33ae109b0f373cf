package repository

import (
	"context"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"gorm.io/gorm"
)

// TransactionRepository reads the append-only payment ledger. Writes happen
// only through PaymentRepository, inside the same database transaction as the
// status change they belong to.
type TransactionRepository interface {
	GetByAttemptID(ctx context.Context, storeID, attemptID string) ([]domain.PaymentTransaction, error)
	SumByType(ctx context.Context, storeID, attemptID string, txType domain.TransactionType) (int64, error)
}

type GormTransactionRepo struct {
	db *gorm.DB
}

func NewGormTransactionRepo(db *gorm.DB) *GormTransactionRepo {
	return &GormTransactionRepo{db: db}
}

func (r *GormTransactionRepo) GetByAttemptID(ctx context.Context, storeID, attemptID string) ([]domain.PaymentTransaction, error) {
	var models []PaymentTransactionModel
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND attempt_id = ?", storeID, attemptID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	transactions := make([]domain.PaymentTransaction, 0, len(models))
	for i := range models {
		transactions = append(transactions, *transactionModelToDomain(&models[i]))
	}

	return transactions, nil
}

func (r *GormTransactionRepo) SumByType(ctx context.Context, storeID, attemptID string, txType domain.TransactionType) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&PaymentTransactionModel{}).
		Where("store_id = ? AND attempt_id = ? AND type = ?", storeID, attemptID, txType).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
