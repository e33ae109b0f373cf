package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/service"
	"github.com/kursadbilgin/payment-engine/internal/transport"
	"go.uber.org/zap"
)

type stubWebhookService struct {
	createFn         func(ctx context.Context, webhook *domain.Webhook) (*domain.Webhook, error)
	updateFn         func(ctx context.Context, storeID, webhookID string, input service.UpdateWebhookInput) (*domain.Webhook, error)
	getFn            func(ctx context.Context, storeID, webhookID string) (*domain.Webhook, error)
	listFn           func(ctx context.Context, storeID string) ([]domain.Webhook, error)
	deleteFn         func(ctx context.Context, storeID, webhookID string) error
	listDeliveriesFn func(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error)
	testFn           func(ctx context.Context, storeID, webhookID string) (*service.DeliveryResult, error)
}

func (s *stubWebhookService) Create(ctx context.Context, webhook *domain.Webhook) (*domain.Webhook, error) {
	return s.createFn(ctx, webhook)
}

func (s *stubWebhookService) Update(ctx context.Context, storeID, webhookID string, input service.UpdateWebhookInput) (*domain.Webhook, error) {
	return s.updateFn(ctx, storeID, webhookID, input)
}

func (s *stubWebhookService) Get(ctx context.Context, storeID, webhookID string) (*domain.Webhook, error) {
	return s.getFn(ctx, storeID, webhookID)
}

func (s *stubWebhookService) List(ctx context.Context, storeID string) ([]domain.Webhook, error) {
	return s.listFn(ctx, storeID)
}

func (s *stubWebhookService) Delete(ctx context.Context, storeID, webhookID string) error {
	return s.deleteFn(ctx, storeID, webhookID)
}

func (s *stubWebhookService) ListDeliveries(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	return s.listDeliveriesFn(ctx, storeID, webhookID, limit)
}

func (s *stubWebhookService) TestWebhook(ctx context.Context, storeID, webhookID string) (*service.DeliveryResult, error) {
	return s.testFn(ctx, storeID, webhookID)
}

func newWebhookTestApp(t *testing.T, svc WebhookService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterWebhookRoutes(app, svc); err != nil {
		t.Fatalf("RegisterWebhookRoutes() error = %v", err)
	}

	return app
}

func storedWebhook() *domain.Webhook {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	secret := "whsec_abc"
	return &domain.Webhook{
		ID:        "wh-1",
		StoreID:   "store-1",
		Name:      "orders",
		URL:       "https://hooks.example.com/payments",
		Secret:    &secret,
		Events:    []string{domain.EventPaymentCaptured},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateWebhook(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		createFn: func(ctx context.Context, webhook *domain.Webhook) (*domain.Webhook, error) {
			if webhook.StoreID != "store-1" {
				t.Fatalf("StoreID = %q, want store-1", webhook.StoreID)
			}
			created := *webhook
			created.ID = "wh-1"
			created.IsActive = true
			return &created, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	body := `{"name":"orders","url":"https://hooks.example.com/payments","secret":"whsec_abc","events":["payment.captured"]}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/webhooks", "store-1", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["id"] != "wh-1" {
		t.Fatalf("id = %v, want wh-1", parsed["id"])
	}
	if parsed["hasSecret"] != true {
		t.Fatalf("hasSecret = %v, want true", parsed["hasSecret"])
	}
	if _, leaked := parsed["secret"]; leaked {
		t.Fatal("secret must not appear in responses")
	}
}

func TestCreateWebhookValidationMapsTo400(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		createFn: func(ctx context.Context, webhook *domain.Webhook) (*domain.Webhook, error) {
			return nil, fmt.Errorf("%w: url must use https", domain.ErrValidation)
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/webhooks", "store-1", `{"name":"orders","url":"http://hooks.example.com","events":["payment.captured"]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateWebhook(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		updateFn: func(ctx context.Context, storeID, webhookID string, input service.UpdateWebhookInput) (*domain.Webhook, error) {
			if webhookID != "wh-1" {
				t.Fatalf("webhookID = %q, want wh-1", webhookID)
			}
			if input.IsActive == nil || !*input.IsActive {
				t.Fatal("IsActive = nil or false, want true")
			}
			updated := storedWebhook()
			updated.FailureCount = 0
			return updated, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPatch, "/v1/webhooks/wh-1", "store-1", `{"isActive":true}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
}

func TestDeleteWebhook(t *testing.T) {
	t.Parallel()

	deleted := ""
	svc := &stubWebhookService{
		deleteFn: func(ctx context.Context, storeID, webhookID string) error {
			deleted = webhookID
			return nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodDelete, "/v1/webhooks/wh-1", "store-1", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if deleted != "wh-1" {
		t.Fatalf("deleted = %q, want wh-1", deleted)
	}
}

func TestListWebhooks(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		listFn: func(ctx context.Context, storeID string) ([]domain.Webhook, error) {
			return []domain.Webhook{*storedWebhook()}, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/webhooks", "store-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed struct {
		Data []webhookResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].ID != "wh-1" {
		t.Fatalf("data = %+v, want one webhook wh-1", parsed.Data)
	}
}

func TestTestWebhook(t *testing.T) {
	t.Parallel()

	statusCode := 200
	svc := &stubWebhookService{
		testFn: func(ctx context.Context, storeID, webhookID string) (*service.DeliveryResult, error) {
			return &service.DeliveryResult{Success: true, Attempts: 1, StatusCode: &statusCode}, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/webhooks/wh-1/test", "store-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed testWebhookResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Success || parsed.Attempts != 1 {
		t.Fatalf("parsed = %+v, want success on first attempt", parsed)
	}
}

func TestTestWebhookDisabledMapsTo409(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		testFn: func(ctx context.Context, storeID, webhookID string) (*service.DeliveryResult, error) {
			return nil, domain.ErrWebhookDisabled
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/webhooks/wh-1/test", "store-1", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestListDeliveries(t *testing.T) {
	t.Parallel()

	svc := &stubWebhookService{
		listDeliveriesFn: func(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
			if limit != 10 {
				t.Fatalf("limit = %d, want 10", limit)
			}
			code := 500
			errText := "server error"
			return []domain.WebhookDelivery{{
				ID:            "del-1",
				WebhookID:     webhookID,
				EventID:       "evt-1",
				Event:         domain.EventPaymentCaptured,
				AttemptNumber: 1,
				StatusCode:    &code,
				Error:         &errText,
				CreatedAt:     time.Now().UTC(),
			}}, nil
		},
	}
	app := newWebhookTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/webhooks/wh-1/deliveries?limit=10", "store-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed struct {
		Data []deliveryResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].Event != domain.EventPaymentCaptured {
		t.Fatalf("data = %+v, want one delivery row", parsed.Data)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/webhooks/wh-1/deliveries?limit=1000", "store-1", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized limit", resp.StatusCode)
	}
}
