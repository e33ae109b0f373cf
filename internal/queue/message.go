package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DeliveryMessage is the broker payload for one webhook delivery job: one
// domain event fanned out to one subscribed endpoint.
type DeliveryMessage struct {
	WebhookID string          `json:"webhookId"`
	StoreID   string          `json:"storeId"`
	EventID   string          `json:"eventId"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return fmt.Errorf("webhookId is required")
	}
	if strings.TrimSpace(m.StoreID) == "" {
		return fmt.Errorf("storeId is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if strings.TrimSpace(m.Event) == "" {
		return fmt.Errorf("event is required")
	}
	if len(m.Payload) == 0 || !json.Valid(m.Payload) {
		return fmt.Errorf("payload must be valid JSON")
	}
	return nil
}
