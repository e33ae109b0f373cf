package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/observability"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"github.com/kursadbilgin/payment-engine/internal/sender"
	"go.uber.org/zap"
)

const maxDeliveryAttempts = 3

// deliveryBackoff[i] is the pause after the (i+1)-th failed attempt.
var deliveryBackoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// DeliveryResult summarizes one delivery job: a single event posted to a
// single endpoint, retries included.
type DeliveryResult struct {
	Success    bool
	Attempts   int
	StatusCode *int
	Error      *string
}

// WebhookDeliverer runs a full delivery job for one webhook and event.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, webhook *domain.Webhook, eventID, event string, payload []byte) (*DeliveryResult, error)
}

// Deliverer posts a signed event to a subscriber endpoint with bounded
// retries, records every HTTP attempt as a delivery row, and applies the
// webhook's success/failure accounting once per job.
type Deliverer struct {
	webhooks   repository.WebhookRepository
	deliveries repository.DeliveryRepository
	sender     sender.Sender
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewDeliverer(
	webhooks repository.WebhookRepository,
	deliveries repository.DeliveryRepository,
	httpSender sender.Sender,
	logger *zap.Logger,
) (*Deliverer, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if httpSender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Deliverer{
		webhooks:   webhooks,
		deliveries: deliveries,
		sender:     httpSender,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepBetweenAttempts,
	}, nil
}

func (d *Deliverer) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

func (d *Deliverer) Deliver(ctx context.Context, webhook *domain.Webhook, eventID, event string, payload []byte) (*DeliveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if webhook == nil {
		return nil, fmt.Errorf("%w: webhook is required", domain.ErrValidation)
	}

	req := sender.Request{
		URL:     webhook.URL,
		Body:    payload,
		Secret:  derefOrEmpty(webhook.Secret),
		Headers: webhook.CustomHeaders,
		Event:   event,
		EventID: eventID,
	}

	result := &DeliveryResult{}
	var lastErr error

	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, sendErr := d.sender.Send(ctx, req)
		result.Attempts = attempt
		lastErr = sendErr

		d.recordAttempt(ctx, webhook, eventID, event, attempt, resp, sendErr)
		if d.metrics != nil {
			d.metrics.ObserveWebhookDelivery(sendErr == nil, responseDuration(resp))
		}

		if resp != nil {
			code := resp.StatusCode
			result.StatusCode = &code
		}

		if sendErr == nil {
			result.Success = true
			break
		}

		if !sender.IsTransient(sendErr) || attempt == maxDeliveryAttempts {
			break
		}

		if err := d.sleep(ctx, backoffFor(attempt)); err != nil {
			return nil, err
		}
	}

	if result.Success {
		if err := d.webhooks.RecordSuccess(ctx, webhook.ID, d.now().UTC()); err != nil {
			return nil, fmt.Errorf("failed to record webhook success: %w", err)
		}
		return result, nil
	}

	errText := "delivery failed"
	if lastErr != nil {
		errText = lastErr.Error()
	}
	result.Error = &errText

	if err := d.webhooks.RecordFailure(ctx, webhook.ID, d.now().UTC(), errText); err != nil {
		return nil, fmt.Errorf("failed to record webhook failure: %w", err)
	}

	if webhook.FailureCount+1 >= domain.WebhookMaxConsecutiveFailures {
		observability.WithContextLogger(d.logger, ctx).Warn("webhook disabled after consecutive failures",
			zap.String("webhookId", webhook.ID),
			zap.String("storeId", webhook.StoreID),
			zap.Int("failureCount", webhook.FailureCount+1),
		)
		if d.metrics != nil {
			d.metrics.IncWebhookDisabled()
		}
	}

	return result, nil
}

func (d *Deliverer) recordAttempt(
	ctx context.Context,
	webhook *domain.Webhook,
	eventID, event string,
	attemptNumber int,
	resp *sender.Response,
	sendErr error,
) {
	var statusCode *int
	var responseBody *string
	var attemptErr *string
	var durationMS int64

	if resp != nil {
		if resp.StatusCode > 0 {
			code := resp.StatusCode
			statusCode = &code
		}
		if resp.Body != "" {
			body := resp.Body
			responseBody = &body
		}
		durationMS = resp.Duration.Milliseconds()
	}
	if sendErr != nil {
		text := sendErr.Error()
		attemptErr = &text
	}

	delivery := &domain.WebhookDelivery{
		ID:            uuid.NewString(),
		WebhookID:     webhook.ID,
		StoreID:       webhook.StoreID,
		EventID:       eventID,
		Event:         event,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		DurationMS:    durationMS,
		Success:       sendErr == nil,
		Error:         attemptErr,
		CreatedAt:     d.now().UTC(),
	}
	if err := d.deliveries.Create(ctx, delivery); err != nil {
		observability.WithContextLogger(d.logger, ctx).Error("failed to record delivery attempt",
			zap.String("webhookId", webhook.ID),
			zap.String("eventId", eventID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}

func backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(deliveryBackoff) {
		idx = len(deliveryBackoff) - 1
	}
	return deliveryBackoff[idx]
}

func responseDuration(resp *sender.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return resp.Duration
}

func sleepBetweenAttempts(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
