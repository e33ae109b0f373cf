package domain

import (
	"fmt"
	"strings"
	"time"
)

// Webhook endpoints self-disable once this many consecutive deliveries fail.
const WebhookMaxConsecutiveFailures = 10

// Webhook is a tenant-owned subscription endpoint for domain events.
type Webhook struct {
	ID              string
	StoreID         string
	Name            string
	URL             string
	Secret          *string
	Events          []string
	CustomHeaders   map[string]string
	IsActive        bool
	FailureCount    int
	LastTriggeredAt *time.Time
	LastSuccessAt   *time.Time
	LastErrorAt     *time.Time
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (w *Webhook) Validate() error {
	if strings.TrimSpace(w.StoreID) == "" {
		return fmt.Errorf("%w: store id is required", ErrValidation)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(w.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("%w: at least one subscribed event is required", ErrValidation)
	}
	return nil
}

// SubscribedTo reports whether the webhook subscribes to event, either by
// exact name or the wildcard "*".
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == "*" || e == event {
			return true
		}
	}
	return false
}

// WebhookDelivery is the immutable record of one HTTP delivery attempt,
// retries included.
type WebhookDelivery struct {
	ID            string
	WebhookID     string
	StoreID       string
	EventID       string
	Event         string
	AttemptNumber int
	StatusCode    *int
	ResponseBody  *string
	DurationMS    int64
	Success       bool
	Error         *string
	CreatedAt     time.Time
}

// EventPayload is the wire format posted to subscriber endpoints.
type EventPayload struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	StoreID   string         `json:"storeId"`
	CreatedAt time.Time      `json:"createdAt"`
	Data      map[string]any `json:"data"`
}

// Domain event names emitted by the payment engine.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
	EventPaymentVoided   = "payment.voided"
	EventWebhookTest     = "webhook.test"
)
