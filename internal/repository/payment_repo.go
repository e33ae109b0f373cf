package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransitionParams describes an atomic status transition. The status update
// and the optional ledger row commit through a single database transaction,
// guarded by a compare-and-swap on the expected prior status.
type TransitionParams struct {
	AttemptID  string
	StoreID    string
	FromStatus domain.Status
	ToStatus   domain.Status
	Updates    map[string]any
	Ledger     *domain.PaymentTransaction
}

type PaymentRepository interface {
	Create(ctx context.Context, a *domain.PaymentAttempt) error
	GetByID(ctx context.Context, storeID, id string) (*domain.PaymentAttempt, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentAttempt, error)
	GetByOrderID(ctx context.Context, storeID, orderID string) ([]domain.PaymentAttempt, error)
	Transition(ctx context.Context, params TransitionParams) error
	AppendRefund(ctx context.Context, txn *domain.PaymentTransaction) error
	FindStuck(ctx context.Context, status domain.Status, cutoff time.Time) ([]domain.PaymentAttempt, error)
}

type GormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) *GormPaymentRepo {
	return &GormPaymentRepo{db: db}
}

func (r *GormPaymentRepo) Create(ctx context.Context, a *domain.PaymentAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormPaymentRepo) GetByID(ctx context.Context, storeID, id string) (*domain.PaymentAttempt, error) {
	var model PaymentAttemptModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return attemptModelToDomain(&model), nil
}

func (r *GormPaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentAttempt, error) {
	var model PaymentAttemptModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return attemptModelToDomain(&model), nil
}

func (r *GormPaymentRepo) GetByOrderID(ctx context.Context, storeID, orderID string) ([]domain.PaymentAttempt, error) {
	var models []PaymentAttemptModel
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND order_id = ?", storeID, orderID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.PaymentAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

// Transition applies a status change conditioned on the expected prior
// status. Zero rows affected means the row moved underneath the caller; the
// caller sees domain.ErrConflict and must not assume the transition happened.
func (r *GormPaymentRepo) Transition(ctx context.Context, params TransitionParams) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": params.ToStatus}
		for column, value := range params.Updates {
			updates[column] = value
		}

		result := tx.Model(&PaymentAttemptModel{}).
			Where("id = ? AND store_id = ? AND status = ?", params.AttemptID, params.StoreID, params.FromStatus).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrConflict
		}

		if params.Ledger != nil {
			if err := tx.Create(transactionModelFromDomain(params.Ledger)).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// AppendRefund adds a REFUND ledger row after re-checking the captured status
// and the refundable balance under a row lock, so concurrent refunds cannot
// overdraw the captured total.
func (r *GormPaymentRepo) AppendRefund(ctx context.Context, txn *domain.PaymentTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model PaymentAttemptModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND store_id = ?", txn.AttemptID, txn.StoreID).
			First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if model.Status != domain.StatusCaptured {
			return domain.ErrNotCaptured
		}

		captured, err := sumTransactions(tx, txn.AttemptID, domain.TransactionCapture)
		if err != nil {
			return err
		}
		refunded, err := sumTransactions(tx, txn.AttemptID, domain.TransactionRefund)
		if err != nil {
			return err
		}

		if txn.Amount > captured-refunded {
			return domain.ErrRefundExceedsBalance
		}

		return tx.Create(transactionModelFromDomain(txn)).Error
	})
}

func (r *GormPaymentRepo) FindStuck(ctx context.Context, status domain.Status, cutoff time.Time) ([]domain.PaymentAttempt, error) {
	var models []PaymentAttemptModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, cutoff).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.PaymentAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

func sumTransactions(tx *gorm.DB, attemptID string, txType domain.TransactionType) (int64, error) {
	var total int64
	err := tx.Model(&PaymentTransactionModel{}).
		Where("attempt_id = ? AND type = ?", attemptID, txType).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
