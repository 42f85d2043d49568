package adapters

import (
	"context"

	"bookvault/internal/orders/domain"
	"bookvault/pkg/events"
	"bookvault/pkg/logger"
	"bookvault/pkg/rabbitmq"
)

// RabbitMQPublisher implements EventPublisher using RabbitMQ
type RabbitMQPublisher struct {
	publisher *rabbitmq.Publisher
	log       *logger.Logger
}

// NewRabbitMQPublisher creates a new RabbitMQ event publisher
func NewRabbitMQPublisher(publisher *rabbitmq.Publisher, log *logger.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		publisher: publisher,
		log:       log,
	}
}

// PublishOrderCreated publishes an order created event
func (p *RabbitMQPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	event := events.NewOrderCreatedEvent(orderCreatedPayload(order), logger.GetTraceID(ctx))
	return p.publisher.Publish(ctx, events.RoutingKeyOrderCreated, event)
}

// PublishOrderStatusChanged publishes a committed status transition
func (p *RabbitMQPublisher) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	event := events.NewOrderStatusChangedEvent(statusChangedPayload(order, from), logger.GetTraceID(ctx))
	return p.publisher.Publish(ctx, events.RoutingKeyOrderStatusChanged, event)
}

func orderCreatedPayload(order *domain.Order) events.OrderCreatedPayload {
	return events.OrderCreatedPayload{
		ID:          order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID.String(),
		Status:      string(order.Status),
		FinalAmount: order.FinalAmount().StringFixed(2),
		ItemCount:   order.ItemCount(),
		CreatedAt:   order.CreatedAt,
	}
}

func statusChangedPayload(order *domain.Order, from domain.OrderStatus) events.OrderStatusChangedPayload {
	payload := events.OrderStatusChangedPayload{
		ID:          order.ID.String(),
		OrderNumber: order.OrderNumber,
		From:        string(from),
		To:          string(order.Status),
		ChangedAt:   order.UpdatedAt,
	}
	if order.Status == domain.OrderStatusCancelled {
		payload.Reason = order.CancellationReason
	}
	return payload
}
