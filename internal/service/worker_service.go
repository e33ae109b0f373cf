package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/payment-engine/internal/domain"
	"github.com/kursadbilgin/payment-engine/internal/observability"
	"github.com/kursadbilgin/payment-engine/internal/queue"
	"github.com/kursadbilgin/payment-engine/internal/ratelimit"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkerService drains the webhook delivery queue with a pool of consumers.
// Each message is one event for one endpoint; the deliverer handles retries
// and accounting, the worker handles load shedding and ack semantics.
type WorkerService struct {
	webhooks    repository.WebhookRepository
	deliverer   WebhookDeliverer
	consumer    queue.Consumer
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkerService(
	webhooks repository.WebhookRepository,
	deliverer WebhookDeliverer,
	consumer queue.Consumer,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		webhooks:    webhooks,
		deliverer:   deliverer,
		consumer:    consumer,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the delivery queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("delivery worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.WorkQueueName),
			)

			err := s.consumer.Consume(groupCtx, queue.WorkQueueName, s.processMessage)
			if err != nil {
				s.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("delivery worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	ctx = observability.WithCorrelationID(ctx, msg.EventID)

	webhook, err := s.webhooks.GetByID(ctx, msg.StoreID, msg.WebhookID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("webhook missing during delivery, dropping message",
				zap.String("webhookId", msg.WebhookID),
				zap.String("eventId", msg.EventID),
			)
			return nil
		}
		return fmt.Errorf("failed to load webhook for delivery: %w", err)
	}

	// The webhook may have been disabled or paused after enqueue.
	if !webhook.IsActive {
		s.logger.Info("skipping delivery to inactive webhook",
			zap.String("webhookId", webhook.ID),
			zap.String("eventId", msg.EventID),
		)
		return nil
	}

	if err := s.rateLimiter.Wait(ctx, msg.StoreID); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncDeliveryInFlight()
		defer s.metrics.DecDeliveryInFlight()
	}

	result, err := s.deliverer.Deliver(ctx, webhook, msg.EventID, msg.Event, msg.Payload)
	if err != nil {
		return fmt.Errorf("delivery job failed: %w", err)
	}

	if !result.Success {
		s.logger.Warn("webhook delivery exhausted retries",
			zap.String("webhookId", webhook.ID),
			zap.String("eventId", msg.EventID),
			zap.Int("attempts", result.Attempts),
		)
	}

	return nil
}
