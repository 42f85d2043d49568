package adapters

import (
	"context"

	"bookvault/internal/orders/domain"
	"bookvault/pkg/events"
	"bookvault/pkg/kafka"
	"bookvault/pkg/logger"
)

// KafkaPublisher implements EventPublisher on a single Kafka topic. Messages
// are keyed by order ID so one order's events stay in partition order.
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher creates a publisher over producer
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// PublishOrderCreated publishes an order created event
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	traceID := logger.GetTraceID(ctx)
	event := events.NewOrderCreatedEvent(orderCreatedPayload(order), traceID)
	return p.producer.Publish(ctx, order.ID.String(), event.EventType, traceID, event)
}

// PublishOrderStatusChanged publishes a committed status transition
func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	traceID := logger.GetTraceID(ctx)
	event := events.NewOrderStatusChangedEvent(statusChangedPayload(order, from), traceID)
	return p.producer.Publish(ctx, order.ID.String(), event.EventType, traceID, event)
}
