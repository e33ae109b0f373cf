package repository

import (
	"context"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"gorm.io/gorm"
)

// DeliveryRepository persists the append-only webhook delivery audit trail.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	ListByWebhook(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) ListByWebhook(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	if limit < 1 {
		limit = 50
	}

	var models []WebhookDeliveryModel
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND webhook_id = ?", storeID, webhookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.WebhookDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, nil
}
