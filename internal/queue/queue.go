package queue

import "context"

// Queue topology. A single durable work queue carries all webhook delivery
// jobs; poison messages dead-letter into the DLQ.
const (
	WorkQueueName = "webhook.deliveries"
	DLQName       = "dlq.webhook.deliveries"

	dlxExchangeName = "payment-engine.dlx"
	dlqRoutingKey   = "webhook.deliveries"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
