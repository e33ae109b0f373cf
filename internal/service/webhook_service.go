package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"github.com/kursadbilgin/payment-engine/internal/sender"
	"go.uber.org/zap"
)

// WebhookService manages tenant webhook subscriptions and synchronous test
// deliveries. Destination URLs pass SSRF validation on every write, and
// custom headers are allow-list filtered before they are stored.
type WebhookService struct {
	webhooks   repository.WebhookRepository
	deliveries repository.DeliveryRepository
	validator  *sender.URLValidator
	deliverer  WebhookDeliverer
	logger     *zap.Logger
	now        func() time.Time
}

type UpdateWebhookInput struct {
	Name          *string
	URL           *string
	Secret        *string
	Events        []string
	CustomHeaders map[string]string
	IsActive      *bool
}

func NewWebhookService(
	webhooks repository.WebhookRepository,
	deliveries repository.DeliveryRepository,
	validator *sender.URLValidator,
	deliverer WebhookDeliverer,
	logger *zap.Logger,
) (*WebhookService, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("url validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		webhooks:   webhooks,
		deliveries: deliveries,
		validator:  validator,
		deliverer:  deliverer,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *WebhookService) Create(ctx context.Context, webhook *domain.Webhook) (*domain.Webhook, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if webhook == nil {
		return nil, fmt.Errorf("%w: webhook is required", domain.ErrValidation)
	}

	webhook.ID = uuid.NewString()
	webhook.StoreID = strings.TrimSpace(webhook.StoreID)
	webhook.Name = strings.TrimSpace(webhook.Name)
	webhook.URL = strings.TrimSpace(webhook.URL)
	webhook.Secret = normalizeOptionalString(webhook.Secret)
	webhook.Events = normalizeEvents(webhook.Events)
	webhook.CustomHeaders = sender.FilterCustomHeaders(webhook.CustomHeaders)
	webhook.IsActive = true
	webhook.FailureCount = 0

	if err := webhook.Validate(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ctx, webhook.URL); err != nil {
		return nil, err
	}

	if err := s.webhooks.Create(ctx, webhook); err != nil {
		return nil, err
	}

	return webhook, nil
}

func (s *WebhookService) Update(ctx context.Context, storeID, webhookID string, input UpdateWebhookInput) (*domain.Webhook, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	webhook, err := s.Get(ctx, storeID, webhookID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		webhook.Name = strings.TrimSpace(*input.Name)
	}
	if input.URL != nil {
		webhook.URL = strings.TrimSpace(*input.URL)
	}
	if input.Secret != nil {
		webhook.Secret = normalizeOptionalString(input.Secret)
	}
	if input.Events != nil {
		webhook.Events = normalizeEvents(input.Events)
	}
	if input.CustomHeaders != nil {
		webhook.CustomHeaders = sender.FilterCustomHeaders(input.CustomHeaders)
	}
	if input.IsActive != nil {
		webhook.IsActive = *input.IsActive
		// Explicit re-enable also resets the circuit breaker.
		if *input.IsActive {
			webhook.FailureCount = 0
		}
	}

	if err := webhook.Validate(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ctx, webhook.URL); err != nil {
		return nil, err
	}

	if err := s.webhooks.Update(ctx, webhook); err != nil {
		return nil, err
	}

	return s.Get(ctx, storeID, webhookID)
}

func (s *WebhookService) Get(ctx context.Context, storeID, webhookID string) (*domain.Webhook, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, fmt.Errorf("%w: store id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(webhookID) == "" {
		return nil, fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.GetByID(ctx, strings.TrimSpace(storeID), strings.TrimSpace(webhookID))
}

func (s *WebhookService) List(ctx context.Context, storeID string) ([]domain.Webhook, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, fmt.Errorf("%w: store id is required", domain.ErrValidation)
	}
	return s.webhooks.ListByStore(ctx, strings.TrimSpace(storeID))
}

func (s *WebhookService) Delete(ctx context.Context, storeID, webhookID string) error {
	if strings.TrimSpace(storeID) == "" {
		return fmt.Errorf("%w: store id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(webhookID) == "" {
		return fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.Delete(ctx, strings.TrimSpace(storeID), strings.TrimSpace(webhookID))
}

func (s *WebhookService) ListDeliveries(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	if _, err := s.Get(ctx, storeID, webhookID); err != nil {
		return nil, err
	}
	return s.deliveries.ListByWebhook(ctx, strings.TrimSpace(storeID), strings.TrimSpace(webhookID), limit)
}

// TestWebhook posts a synthetic test event through the same validated,
// signed, retried delivery path as real events and returns the outcome
// synchronously.
func (s *WebhookService) TestWebhook(ctx context.Context, storeID, webhookID string) (*DeliveryResult, error) {
	if s.deliverer == nil {
		return nil, fmt.Errorf("deliverer is not configured")
	}

	webhook, err := s.Get(ctx, storeID, webhookID)
	if err != nil {
		return nil, err
	}
	if !webhook.IsActive {
		return nil, domain.ErrWebhookDisabled
	}

	eventID := uuid.NewString()
	payload, err := json.Marshal(domain.EventPayload{
		ID:        eventID,
		Event:     domain.EventWebhookTest,
		StoreID:   webhook.StoreID,
		CreatedAt: s.now().UTC(),
		Data: map[string]any{
			"webhookId": webhook.ID,
			"message":   "test delivery",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test payload: %w", err)
	}

	return s.deliverer.Deliver(ctx, webhook, eventID, domain.EventWebhookTest, payload)
}

func normalizeEvents(events []string) []string {
	normalized := make([]string, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, event := range events {
		trimmed := strings.ToLower(strings.TrimSpace(event))
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		normalized = append(normalized, trimmed)
	}
	return normalized
}
