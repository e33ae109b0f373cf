package repository

import (
	"time"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"gorm.io/gorm"
)

// PaymentAttemptModel is the persistence model for the payment_attempts table.
type PaymentAttemptModel struct {
	ID                string        `gorm:"type:uuid;primaryKey"`
	StoreID           string        `gorm:"type:uuid;not null;index:idx_attempts_store_order,priority:1"`
	OrderID           string        `gorm:"type:uuid;not null;index:idx_attempts_store_order,priority:2"`
	Provider          string        `gorm:"type:varchar(50);not null"`
	ProviderReference *string       `gorm:"type:varchar(255)"`
	Amount            int64         `gorm:"not null"`
	Currency          string        `gorm:"type:char(3);not null"`
	Status            domain.Status `gorm:"type:varchar(20);not null"`
	AttemptCount      int           `gorm:"not null;default:1"`
	LastErrorCode     *string       `gorm:"type:varchar(100)"`
	LastErrorMessage  *string       `gorm:"type:text"`
	NextRetryAt       *time.Time
	IdempotencyKey    *string `gorm:"type:varchar(255)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (PaymentAttemptModel) TableName() string {
	return "payment_attempts"
}

// PaymentTransactionModel is the persistence model for the append-only
// payment_transactions ledger.
type PaymentTransactionModel struct {
	ID                string                 `gorm:"type:uuid;primaryKey"`
	AttemptID         string                 `gorm:"type:uuid;not null;index"`
	StoreID           string                 `gorm:"type:uuid;not null"`
	Type              domain.TransactionType `gorm:"type:varchar(10);not null"`
	Amount            int64                  `gorm:"not null"`
	Currency          string                 `gorm:"type:char(3);not null"`
	ProviderReference *string                `gorm:"type:varchar(255)"`
	Reason            *string                `gorm:"type:text"`
	CreatedAt         time.Time
}

func (PaymentTransactionModel) TableName() string {
	return "payment_transactions"
}

// WebhookModel is the persistence model for tenant webhook subscriptions.
type WebhookModel struct {
	ID              string            `gorm:"type:uuid;primaryKey"`
	StoreID         string            `gorm:"type:uuid;not null;index"`
	Name            string            `gorm:"type:varchar(255);not null"`
	URL             string            `gorm:"type:text;not null"`
	Secret          *string           `gorm:"type:varchar(255)"`
	Events          []string          `gorm:"type:jsonb;serializer:json;not null"`
	CustomHeaders   map[string]string `gorm:"type:jsonb;serializer:json"`
	IsActive        bool              `gorm:"not null;default:true"`
	FailureCount    int               `gorm:"not null;default:0"`
	LastTriggeredAt *time.Time
	LastSuccessAt   *time.Time
	LastErrorAt     *time.Time
	LastError       *string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (WebhookModel) TableName() string {
	return "webhooks"
}

// WebhookDeliveryModel is the persistence model for webhook_deliveries, one
// row per outbound HTTP attempt.
type WebhookDeliveryModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	WebhookID     string  `gorm:"type:uuid;not null;index"`
	StoreID       string  `gorm:"type:uuid;not null"`
	EventID       string  `gorm:"type:uuid;not null"`
	Event         string  `gorm:"type:varchar(100);not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	DurationMS    int64   `gorm:"not null;default:0"`
	Success       bool    `gorm:"not null;default:false"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// AuditLogModel is the persistence model for audit_logs.
type AuditLogModel struct {
	ID         string             `gorm:"type:uuid;primaryKey"`
	StoreID    string             `gorm:"type:varchar(36);index"`
	EntityType string             `gorm:"type:varchar(50);not null;index:idx_audit_entity,priority:1"`
	EntityID   string             `gorm:"type:varchar(100);not null;index:idx_audit_entity,priority:2"`
	Action     domain.AuditAction `gorm:"type:varchar(20);not null"`
	OldValue   *string            `gorm:"type:text"`
	NewValue   *string            `gorm:"type:text"`
	CreatedAt  time.Time
}

func (AuditLogModel) TableName() string {
	return "audit_logs"
}

func attemptModelFromDomain(a *domain.PaymentAttempt) *PaymentAttemptModel {
	if a == nil {
		return nil
	}

	return &PaymentAttemptModel{
		ID:                a.ID,
		StoreID:           a.StoreID,
		OrderID:           a.OrderID,
		Provider:          a.Provider,
		ProviderReference: a.ProviderReference,
		Amount:            a.Amount,
		Currency:          a.Currency,
		Status:            a.Status,
		AttemptCount:      a.AttemptCount,
		LastErrorCode:     a.LastErrorCode,
		LastErrorMessage:  a.LastErrorMessage,
		NextRetryAt:       a.NextRetryAt,
		IdempotencyKey:    a.IdempotencyKey,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func attemptModelToDomain(m *PaymentAttemptModel) *domain.PaymentAttempt {
	if m == nil {
		return nil
	}

	return &domain.PaymentAttempt{
		ID:                m.ID,
		StoreID:           m.StoreID,
		OrderID:           m.OrderID,
		Provider:          m.Provider,
		ProviderReference: m.ProviderReference,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Status:            m.Status,
		AttemptCount:      m.AttemptCount,
		LastErrorCode:     m.LastErrorCode,
		LastErrorMessage:  m.LastErrorMessage,
		NextRetryAt:       m.NextRetryAt,
		IdempotencyKey:    m.IdempotencyKey,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func transactionModelFromDomain(t *domain.PaymentTransaction) *PaymentTransactionModel {
	if t == nil {
		return nil
	}

	return &PaymentTransactionModel{
		ID:                t.ID,
		AttemptID:         t.AttemptID,
		StoreID:           t.StoreID,
		Type:              t.Type,
		Amount:            t.Amount,
		Currency:          t.Currency,
		ProviderReference: t.ProviderReference,
		Reason:            t.Reason,
		CreatedAt:         t.CreatedAt,
	}
}

func transactionModelToDomain(m *PaymentTransactionModel) *domain.PaymentTransaction {
	if m == nil {
		return nil
	}

	return &domain.PaymentTransaction{
		ID:                m.ID,
		AttemptID:         m.AttemptID,
		StoreID:           m.StoreID,
		Type:              m.Type,
		Amount:            m.Amount,
		Currency:          m.Currency,
		ProviderReference: m.ProviderReference,
		Reason:            m.Reason,
		CreatedAt:         m.CreatedAt,
	}
}

func webhookModelFromDomain(w *domain.Webhook) *WebhookModel {
	if w == nil {
		return nil
	}

	return &WebhookModel{
		ID:              w.ID,
		StoreID:         w.StoreID,
		Name:            w.Name,
		URL:             w.URL,
		Secret:          w.Secret,
		Events:          w.Events,
		CustomHeaders:   w.CustomHeaders,
		IsActive:        w.IsActive,
		FailureCount:    w.FailureCount,
		LastTriggeredAt: w.LastTriggeredAt,
		LastSuccessAt:   w.LastSuccessAt,
		LastErrorAt:     w.LastErrorAt,
		LastError:       w.LastError,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

func webhookModelToDomain(m *WebhookModel) *domain.Webhook {
	if m == nil {
		return nil
	}

	return &domain.Webhook{
		ID:              m.ID,
		StoreID:         m.StoreID,
		Name:            m.Name,
		URL:             m.URL,
		Secret:          m.Secret,
		Events:          m.Events,
		CustomHeaders:   m.CustomHeaders,
		IsActive:        m.IsActive,
		FailureCount:    m.FailureCount,
		LastTriggeredAt: m.LastTriggeredAt,
		LastSuccessAt:   m.LastSuccessAt,
		LastErrorAt:     m.LastErrorAt,
		LastError:       m.LastError,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func deliveryModelFromDomain(d *domain.WebhookDelivery) *WebhookDeliveryModel {
	if d == nil {
		return nil
	}

	return &WebhookDeliveryModel{
		ID:            d.ID,
		WebhookID:     d.WebhookID,
		StoreID:       d.StoreID,
		EventID:       d.EventID,
		Event:         d.Event,
		AttemptNumber: d.AttemptNumber,
		StatusCode:    d.StatusCode,
		ResponseBody:  d.ResponseBody,
		DurationMS:    d.DurationMS,
		Success:       d.Success,
		Error:         d.Error,
		CreatedAt:     d.CreatedAt,
	}
}

func deliveryModelToDomain(m *WebhookDeliveryModel) *domain.WebhookDelivery {
	if m == nil {
		return nil
	}

	return &domain.WebhookDelivery{
		ID:            m.ID,
		WebhookID:     m.WebhookID,
		StoreID:       m.StoreID,
		EventID:       m.EventID,
		Event:         m.Event,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		DurationMS:    m.DurationMS,
		Success:       m.Success,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func auditModelFromDomain(a *domain.AuditLog) *AuditLogModel {
	if a == nil {
		return nil
	}

	return &AuditLogModel{
		ID:         a.ID,
		StoreID:    a.StoreID,
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Action:     a.Action,
		OldValue:   a.OldValue,
		NewValue:   a.NewValue,
		CreatedAt:  a.CreatedAt,
	}
}
