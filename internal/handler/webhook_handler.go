package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/service"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 100
)

type WebhookService interface {
	Create(ctx context.Context, webhook *domain.Webhook) (*domain.Webhook, error)
	Update(ctx context.Context, storeID, webhookID string, input service.UpdateWebhookInput) (*domain.Webhook, error)
	Get(ctx context.Context, storeID, webhookID string) (*domain.Webhook, error)
	List(ctx context.Context, storeID string) ([]domain.Webhook, error)
	Delete(ctx context.Context, storeID, webhookID string) error
	ListDeliveries(ctx context.Context, storeID, webhookID string, limit int) ([]domain.WebhookDelivery, error)
	TestWebhook(ctx context.Context, storeID, webhookID string) (*service.DeliveryResult, error)
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks", h.CreateWebhook)
	v1.Get("/webhooks", h.ListWebhooks)
	v1.Get("/webhooks/:id", h.GetWebhook)
	v1.Patch("/webhooks/:id", h.UpdateWebhook)
	v1.Delete("/webhooks/:id", h.DeleteWebhook)
	v1.Post("/webhooks/:id/test", h.TestWebhook)
	v1.Get("/webhooks/:id/deliveries", h.ListDeliveries)

	return nil
}

type createWebhookRequest struct {
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	Secret        *string           `json:"secret,omitempty"`
	Events        []string          `json:"events"`
	CustomHeaders map[string]string `json:"customHeaders,omitempty"`
}

type updateWebhookRequest struct {
	Name          *string           `json:"name,omitempty"`
	URL           *string           `json:"url,omitempty"`
	Secret        *string           `json:"secret,omitempty"`
	Events        []string          `json:"events,omitempty"`
	CustomHeaders map[string]string `json:"customHeaders,omitempty"`
	IsActive      *bool             `json:"isActive,omitempty"`
}

type webhookResponse struct {
	ID              string            `json:"id"`
	StoreID         string            `json:"storeId"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	HasSecret       bool              `json:"hasSecret"`
	Events          []string          `json:"events"`
	CustomHeaders   map[string]string `json:"customHeaders,omitempty"`
	IsActive        bool              `json:"isActive"`
	FailureCount    int               `json:"failureCount"`
	LastTriggeredAt *time.Time        `json:"lastTriggeredAt,omitempty"`
	LastSuccessAt   *time.Time        `json:"lastSuccessAt,omitempty"`
	LastErrorAt     *time.Time        `json:"lastErrorAt,omitempty"`
	LastError       *string           `json:"lastError,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type deliveryResponse struct {
	ID            string    `json:"id"`
	WebhookID     string    `json:"webhookId"`
	EventID       string    `json:"eventId"`
	Event         string    `json:"event"`
	AttemptNumber int       `json:"attemptNumber"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	DurationMS    int64     `json:"durationMs"`
	Success       bool      `json:"success"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type testWebhookResponse struct {
	Success    bool    `json:"success"`
	Attempts   int     `json:"attempts"`
	StatusCode *int    `json:"statusCode,omitempty"`
	Error      *string `json:"error,omitempty"`
}

func (h *WebhookHandler) CreateWebhook(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req createWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(c.Context(), &domain.Webhook{
		StoreID:       storeID,
		Name:          strings.TrimSpace(req.Name),
		URL:           strings.TrimSpace(req.URL),
		Secret:        req.Secret,
		Events:        req.Events,
		CustomHeaders: req.CustomHeaders,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toWebhookResponse(created))
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	webhooks, err := h.service.List(c.Context(), storeID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]webhookResponse, 0, len(webhooks))
	for _, webhook := range webhooks {
		w := webhook
		responses = append(responses, toWebhookResponse(&w))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *WebhookHandler) GetWebhook(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	webhook, err := h.service.Get(c.Context(), storeID, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(webhook))
}

func (h *WebhookHandler) UpdateWebhook(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req updateWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updated, err := h.service.Update(c.Context(), storeID, strings.TrimSpace(c.Params("id")), service.UpdateWebhookInput{
		Name:          req.Name,
		URL:           req.URL,
		Secret:        req.Secret,
		Events:        req.Events,
		CustomHeaders: req.CustomHeaders,
		IsActive:      req.IsActive,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(updated))
}

func (h *WebhookHandler) DeleteWebhook(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.service.Delete(c.Context(), storeID, strings.TrimSpace(c.Params("id"))); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) TestWebhook(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.TestWebhook(c.Context(), storeID, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(testWebhookResponse{
		Success:    result.Success,
		Attempts:   result.Attempts,
		StatusCode: result.StatusCode,
		Error:      result.Error,
	})
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	limit := c.QueryInt("limit", defaultDeliveryLimit)
	if limit < 1 || limit > maxDeliveryLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxDeliveryLimit))
	}

	deliveries, err := h.service.ListDeliveries(c.Context(), storeID, strings.TrimSpace(c.Params("id")), limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]deliveryResponse, 0, len(deliveries))
	for _, delivery := range deliveries {
		d := delivery
		responses = append(responses, toDeliveryResponse(&d))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func toWebhookResponse(w *domain.Webhook) webhookResponse {
	if w == nil {
		return webhookResponse{}
	}

	return webhookResponse{
		ID:              w.ID,
		StoreID:         w.StoreID,
		Name:            w.Name,
		URL:             w.URL,
		HasSecret:       w.Secret != nil && *w.Secret != "",
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

func toDeliveryResponse(d *domain.WebhookDelivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:            d.ID,
		WebhookID:     d.WebhookID,
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
