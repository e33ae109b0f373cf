package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"gorm.io/gorm"
)

type WebhookRepository interface {
	Create(ctx context.Context, w *domain.Webhook) error
	Update(ctx context.Context, w *domain.Webhook) error
	GetByID(ctx context.Context, storeID, id string) (*domain.Webhook, error)
	ListByStore(ctx context.Context, storeID string) ([]domain.Webhook, error)
	ListActiveByStore(ctx context.Context, storeID string) ([]domain.Webhook, error)
	Delete(ctx context.Context, storeID, id string) error
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, at time.Time, deliveryErr string) error
}

type GormWebhookRepo struct {
	db *gorm.DB
}

func NewGormWebhookRepo(db *gorm.DB) *GormWebhookRepo {
	return &GormWebhookRepo{db: db}
}

func (r *GormWebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	model := webhookModelFromDomain(w)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if w != nil {
		*w = *webhookModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookRepo) Update(ctx context.Context, w *domain.Webhook) error {
	model := webhookModelFromDomain(w)
	result := r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("id = ? AND store_id = ?", w.ID, w.StoreID).
		Updates(map[string]any{
			"name":           model.Name,
			"url":            model.URL,
			"secret":         model.Secret,
			"events":         model.Events,
			"custom_headers": model.CustomHeaders,
			"is_active":      model.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookRepo) GetByID(ctx context.Context, storeID, id string) (*domain.Webhook, error) {
	var model WebhookModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return webhookModelToDomain(&model), nil
}

func (r *GormWebhookRepo) ListByStore(ctx context.Context, storeID string) ([]domain.Webhook, error) {
	return r.listByStore(ctx, storeID, false)
}

func (r *GormWebhookRepo) ListActiveByStore(ctx context.Context, storeID string) ([]domain.Webhook, error) {
	return r.listByStore(ctx, storeID, true)
}

func (r *GormWebhookRepo) listByStore(ctx context.Context, storeID string, activeOnly bool) ([]domain.Webhook, error) {
	query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var models []WebhookModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	webhooks := make([]domain.Webhook, 0, len(models))
	for i := range models {
		webhooks = append(webhooks, *webhookModelToDomain(&models[i]))
	}

	return webhooks, nil
}

func (r *GormWebhookRepo) Delete(ctx context.Context, storeID, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", id, storeID).
		Delete(&WebhookModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookRepo) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":     0,
			"last_success_at":   at,
			"last_triggered_at": at,
			"last_error":        nil,
		}).Error
}

// RecordFailure increments the consecutive-failure counter and disables the
// webhook once the counter reaches the circuit-breaker threshold. The counter
// arithmetic runs in SQL so concurrent workers cannot lose increments.
func (r *GormWebhookRepo) RecordFailure(ctx context.Context, id string, at time.Time, deliveryErr string) error {
	return r.db.WithContext(ctx).
		Model(&WebhookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":     gorm.Expr("failure_count + 1"),
			"is_active":         gorm.Expr("failure_count + 1 < ?", domain.WebhookMaxConsecutiveFailures),
			"last_triggered_at": at,
			"last_error_at":     at,
			"last_error":        deliveryErr,
		}).Error
}
