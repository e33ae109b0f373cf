package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/service"
)

const (
	storeIDHeader             = "X-Store-ID"
	defaultReconcileTimeout   = 15
	maxReconcileTimeoutQuery  = 24 * 60
	defaultRetryDelayMinutes  = 5
	maxRetryDelayMinutesQuery = 24 * 60
)

type PaymentService interface {
	CreateAttempt(ctx context.Context, input service.CreateAttemptInput) (*domain.PaymentAttempt, error)
	StartAuthorization(ctx context.Context, storeID, attemptID string) (*domain.PaymentAttempt, error)
	CompleteAuthorization(ctx context.Context, storeID, attemptID string, providerReference *string) (*domain.PaymentAttempt, error)
	FailAuthorization(ctx context.Context, storeID, attemptID string, input service.FailAuthorizationInput) (*domain.PaymentAttempt, error)
	Capture(ctx context.Context, storeID, attemptID string, input service.CaptureInput) (*domain.PaymentAttempt, error)
	Refund(ctx context.Context, storeID, attemptID string, input service.RefundInput) (*domain.PaymentTransaction, error)
	Void(ctx context.Context, storeID, attemptID string, input service.VoidInput) (*domain.PaymentAttempt, error)
	GetAttempt(ctx context.Context, storeID, attemptID string) (*domain.PaymentAttempt, error)
	GetAttemptsByOrder(ctx context.Context, storeID, orderID string) ([]domain.PaymentAttempt, error)
	GetTransactions(ctx context.Context, storeID, attemptID string) ([]domain.PaymentTransaction, error)
	GetRefundableAmount(ctx context.Context, storeID, attemptID string) (int64, error)
	RunReconciliation(ctx context.Context, timeoutMinutes int) (*domain.ReconciliationReport, error)
}

type PaymentHandler struct {
	service PaymentService
}

func NewPaymentHandler(service PaymentService) (*PaymentHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("payment service is required")
	}
	return &PaymentHandler{service: service}, nil
}

func RegisterPaymentRoutes(router fiber.Router, service PaymentService) error {
	h, err := NewPaymentHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/payments", h.CreatePayment)
	v1.Get("/payments/:id", h.GetPayment)
	v1.Post("/payments/:id/authorize", h.AuthorizePayment)
	v1.Post("/payments/:id/complete", h.CompleteAuthorization)
	v1.Post("/payments/:id/fail", h.FailAuthorization)
	v1.Post("/payments/:id/capture", h.CapturePayment)
	v1.Post("/payments/:id/refund", h.RefundPayment)
	v1.Post("/payments/:id/void", h.VoidPayment)
	v1.Get("/payments/:id/transactions", h.ListTransactions)
	v1.Get("/payments/:id/refundable", h.GetRefundableAmount)
	v1.Get("/orders/:orderId/payments", h.ListOrderPayments)
	v1.Get("/reconciliation", h.RunReconciliation)

	return nil
}

type createPaymentRequest struct {
	OrderID        string  `json:"orderId"`
	Provider       string  `json:"provider"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	IdempotencyKey *string `json:"idempotencyKey,omitempty"`
}

type completeAuthorizationRequest struct {
	ProviderReference *string `json:"providerReference,omitempty"`
}

type failAuthorizationRequest struct {
	ErrorCode         *string `json:"errorCode,omitempty"`
	ErrorMessage      *string `json:"errorMessage,omitempty"`
	ScheduleRetry     bool    `json:"scheduleRetry"`
	RetryDelayMinutes *int    `json:"retryDelayMinutes,omitempty"`
}

type capturePaymentRequest struct {
	Amount            *int64  `json:"amount,omitempty"`
	ProviderReference *string `json:"providerReference,omitempty"`
}

type refundPaymentRequest struct {
	Amount            int64   `json:"amount"`
	Reason            *string `json:"reason,omitempty"`
	ProviderReference *string `json:"providerReference,omitempty"`
}

type voidPaymentRequest struct {
	Reason            *string `json:"reason,omitempty"`
	ProviderReference *string `json:"providerReference,omitempty"`
}

type paymentResponse struct {
	ID                string     `json:"id"`
	StoreID           string     `json:"storeId"`
	OrderID           string     `json:"orderId"`
	Provider          string     `json:"provider"`
	ProviderReference *string    `json:"providerReference,omitempty"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	AttemptCount      int        `json:"attemptCount"`
	LastErrorCode     *string    `json:"lastErrorCode,omitempty"`
	LastErrorMessage  *string    `json:"lastErrorMessage,omitempty"`
	NextRetryAt       *time.Time `json:"nextRetryAt,omitempty"`
	IdempotencyKey    *string    `json:"idempotencyKey,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type transactionResponse struct {
	ID                string    `json:"id"`
	AttemptID         string    `json:"attemptId"`
	Type              string    `json:"type"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ProviderReference *string   `json:"providerReference,omitempty"`
	Reason            *string   `json:"reason,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type refundableResponse struct {
	AttemptID  string `json:"attemptId"`
	Refundable int64  `json:"refundable"`
	Currency   string `json:"currency"`
}

func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	attempt, err := h.service.CreateAttempt(c.Context(), service.CreateAttemptInput{
		StoreID:        storeID,
		OrderID:        strings.TrimSpace(req.OrderID),
		Provider:       strings.TrimSpace(req.Provider),
		Amount:         req.Amount,
		Currency:       strings.TrimSpace(req.Currency),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	attempt, err := h.service.GetAttempt(c.Context(), storeID, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) AuthorizePayment(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	attempt, err := h.service.StartAuthorization(c.Context(), storeID, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) CompleteAuthorization(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req completeAuthorizationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	attempt, err := h.service.CompleteAuthorization(c.Context(), storeID, strings.TrimSpace(c.Params("id")), req.ProviderReference)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) FailAuthorization(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req failAuthorizationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	input := service.FailAuthorizationInput{
		ErrorCode:         req.ErrorCode,
		ErrorMessage:      req.ErrorMessage,
		ScheduleRetry:     req.ScheduleRetry,
		RetryDelayMinutes: defaultRetryDelayMinutes,
	}
	if req.RetryDelayMinutes != nil {
		if *req.RetryDelayMinutes < 1 || *req.RetryDelayMinutes > maxRetryDelayMinutesQuery {
			return toHTTPError(fmt.Errorf("%w: retryDelayMinutes must be between 1 and %d", domain.ErrValidation, maxRetryDelayMinutesQuery))
		}
		input.RetryDelayMinutes = *req.RetryDelayMinutes
	}

	attempt, err := h.service.FailAuthorization(c.Context(), storeID, strings.TrimSpace(c.Params("id")), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) CapturePayment(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req capturePaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	attempt, err := h.service.Capture(c.Context(), storeID, strings.TrimSpace(c.Params("id")), service.CaptureInput{
		Amount:            req.Amount,
		ProviderReference: req.ProviderReference,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) RefundPayment(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req refundPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	tx, err := h.service.Refund(c.Context(), storeID, strings.TrimSpace(c.Params("id")), service.RefundInput{
		Amount:            req.Amount,
		Reason:            req.Reason,
		ProviderReference: req.ProviderReference,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toTransactionResponse(tx))
}

func (h *PaymentHandler) VoidPayment(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req voidPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	attempt, err := h.service.Void(c.Context(), storeID, strings.TrimSpace(c.Params("id")), service.VoidInput{
		Reason:            req.Reason,
		ProviderReference: req.ProviderReference,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPaymentResponse(attempt))
}

func (h *PaymentHandler) ListTransactions(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	transactions, err := h.service.GetTransactions(c.Context(), storeID, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		t := tx
		responses = append(responses, toTransactionResponse(&t))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *PaymentHandler) GetRefundableAmount(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	attemptID := strings.TrimSpace(c.Params("id"))
	attempt, err := h.service.GetAttempt(c.Context(), storeID, attemptID)
	if err != nil {
		return toHTTPError(err)
	}

	refundable, err := h.service.GetRefundableAmount(c.Context(), storeID, attemptID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(refundableResponse{
		AttemptID:  attemptID,
		Refundable: refundable,
		Currency:   attempt.Currency,
	})
}

func (h *PaymentHandler) ListOrderPayments(c *fiber.Ctx) error {
	storeID, err := requestStoreID(c)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, err := h.service.GetAttemptsByOrder(c.Context(), storeID, strings.TrimSpace(c.Params("orderId")))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]paymentResponse, 0, len(attempts))
	for _, attempt := range attempts {
		a := attempt
		responses = append(responses, toPaymentResponse(&a))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *PaymentHandler) RunReconciliation(c *fiber.Ctx) error {
	timeoutMinutes := c.QueryInt("timeoutMinutes", defaultReconcileTimeout)
	if timeoutMinutes < 1 || timeoutMinutes > maxReconcileTimeoutQuery {
		return toHTTPError(fmt.Errorf("%w: timeoutMinutes must be between 1 and %d", domain.ErrValidation, maxReconcileTimeoutQuery))
	}

	report, err := h.service.RunReconciliation(c.Context(), timeoutMinutes)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

func requestStoreID(c *fiber.Ctx) (string, error) {
	storeID := strings.TrimSpace(c.Get(storeIDHeader))
	if storeID == "" {
		return "", fmt.Errorf("%w: %s header is required", domain.ErrValidation, storeIDHeader)
	}
	return storeID, nil
}

func toPaymentResponse(a *domain.PaymentAttempt) paymentResponse {
	if a == nil {
		return paymentResponse{}
	}

	return paymentResponse{
		ID:                a.ID,
		StoreID:           a.StoreID,
		OrderID:           a.OrderID,
		Provider:          a.Provider,
		ProviderReference: a.ProviderReference,
		Amount:            a.Amount,
		Currency:          a.Currency,
		Status:            a.Status.String(),
		AttemptCount:      a.AttemptCount,
		LastErrorCode:     a.LastErrorCode,
		LastErrorMessage:  a.LastErrorMessage,
		NextRetryAt:       a.NextRetryAt,
		IdempotencyKey:    a.IdempotencyKey,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toTransactionResponse(t *domain.PaymentTransaction) transactionResponse {
	if t == nil {
		return transactionResponse{}
	}

	return transactionResponse{
		ID:                t.ID,
		AttemptID:         t.AttemptID,
		Type:              string(t.Type),
		Amount:            t.Amount,
		Currency:          t.Currency,
		ProviderReference: t.ProviderReference,
		Reason:            t.Reason,
		CreatedAt:         t.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
