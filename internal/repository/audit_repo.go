package repository

import (
	"context"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"gorm.io/gorm"
)

// AuditRepository persists append-only audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

type GormAuditRepo struct {
	db *gorm.DB
}

func NewGormAuditRepo(db *gorm.DB) *GormAuditRepo {
	return &GormAuditRepo{db: db}
}

func (r *GormAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(auditModelFromDomain(entry)).Error
}
