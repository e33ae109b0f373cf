package domain

import "time"

// AuditAction classifies an audit log entry.
type AuditAction string

const (
	AuditCreate         AuditAction = "CREATE"
	AuditStatusChange   AuditAction = "STATUS_CHANGE"
	AuditCapture        AuditAction = "CAPTURE"
	AuditRefund         AuditAction = "REFUND"
	AuditVoid           AuditAction = "VOID"
	AuditReconciliation AuditAction = "RECONCILIATION"
)

// AuditLog records a state transition or payment mutation with before/after
// values. Entries are append-only.
type AuditLog struct {
	ID         string
	StoreID    string
	EntityType string
	EntityID   string
	Action     AuditAction
	OldValue   *string
	NewValue   *string
	CreatedAt  time.Time
}
