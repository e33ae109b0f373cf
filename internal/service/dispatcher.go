package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/queue"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"go.uber.org/zap"
)

// EventDispatcher fans a domain event out to subscribed webhooks. Dispatch is
// fire-and-forget: callers never learn about, or wait for, delivery outcomes.
type EventDispatcher interface {
	Dispatch(ctx context.Context, storeID, event string, data map[string]any)
}

// Dispatcher loads a store's active webhook subscriptions and enqueues one
// delivery job per endpoint subscribed to the event.
type Dispatcher struct {
	webhooks  repository.WebhookRepository
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(
	webhooks repository.WebhookRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		webhooks:  webhooks,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, storeID, event string, data map[string]any) {
	if d == nil || d.webhooks == nil || d.publisher == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	subscriptions, err := d.webhooks.ListActiveByStore(ctx, storeID)
	if err != nil {
		d.logger.Error("failed to load webhook subscriptions for dispatch",
			zap.String("storeId", storeID),
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	var payload []byte
	eventID := uuid.NewString()

	for i := range subscriptions {
		webhook := subscriptions[i]
		if !webhook.SubscribedTo(event) {
			continue
		}

		if payload == nil {
			payload, err = json.Marshal(domain.EventPayload{
				ID:        eventID,
				Event:     event,
				StoreID:   storeID,
				CreatedAt: d.now().UTC(),
				Data:      data,
			})
			if err != nil {
				d.logger.Error("failed to marshal event payload",
					zap.String("storeId", storeID),
					zap.String("event", event),
					zap.Error(err),
				)
				return
			}
		}

		msg := queue.DeliveryMessage{
			WebhookID: webhook.ID,
			StoreID:   storeID,
			EventID:   eventID,
			Event:     event,
			Payload:   payload,
		}
		if err := d.publisher.Publish(ctx, queue.WorkQueueName, msg); err != nil {
			d.logger.Error("failed to enqueue webhook delivery",
				zap.String("webhookId", webhook.ID),
				zap.String("event", event),
				zap.Error(err),
			)
			continue
		}
	}
}
