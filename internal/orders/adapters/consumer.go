package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookvault/internal/orders/application"
	"bookvault/pkg/errors"
	"bookvault/pkg/events"
	"bookvault/pkg/logger"
	"bookvault/pkg/rabbitmq"
)

// PaymentRecorder is the use case surface the payment consumer drives
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, input application.RecordPaymentInput) (*application.OrderSnapshot, error)
}

// PaymentEventHandler turns payment events into order updates
type PaymentEventHandler struct {
	orders PaymentRecorder
	log    *logger.Logger
}

// NewPaymentEventHandler creates a handler that records payments on orders
func NewPaymentEventHandler(orders PaymentRecorder, log *logger.Logger) *PaymentEventHandler {
	return &PaymentEventHandler{orders: orders, log: log}
}

// Handle processes one payment message. Malformed messages and unknown
// orders fail permanently; a payment that no longer fits the order's state
// is logged and dropped.
func (h *PaymentEventHandler) Handle(ctx context.Context, routingKey string, body []byte) error {
	input, traceID, err := decodePaymentEvent(routingKey, body)
	if err != nil {
		h.log.WithContext(ctx).Error("failed to decode payment event",
			zap.Error(err),
			zap.String("routing_key", routingKey),
		)
		return rabbitmq.Permanent(err)
	}
	if logger.GetTraceID(ctx) == "" && traceID != "" {
		ctx = logger.WithTraceIDContext(ctx, traceID)
	}
	log := h.log.WithContext(ctx)

	order, err := h.orders.RecordPayment(ctx, input)
	switch {
	case err == nil:
		log.Info("payment recorded",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_status", string(order.PaymentStatus)),
			zap.String("status", string(order.Status)),
		)
		return nil
	case errors.Is(err, errors.CodeNotFound), errors.Is(err, errors.CodeValidation):
		return rabbitmq.Permanent(err)
	case errors.Is(err, errors.CodeInvalidState), errors.Is(err, errors.CodeIllegalTransition):
		log.Warn("payment event ignored",
			zap.Error(err),
			zap.String("order_id", input.OrderID.String()),
		)
		return nil
	default:
		return err
	}
}

func decodePaymentEvent(routingKey string, body []byte) (application.RecordPaymentInput, string, error) {
	switch routingKey {
	case events.RoutingKeyPaymentCompleted:
		var event events.PaymentCompletedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return application.RecordPaymentInput{}, "", fmt.Errorf("invalid payment completed event: %w", err)
		}
		orderID, err := uuid.Parse(event.Payload.OrderID)
		if err != nil {
			return application.RecordPaymentInput{}, "", fmt.Errorf("invalid order id %q: %w", event.Payload.OrderID, err)
		}
		return application.RecordPaymentInput{
			OrderID:       orderID,
			TransactionID: event.Payload.TransactionID,
			Succeeded:     true,
		}, event.TraceID, nil

	case events.RoutingKeyPaymentFailed:
		var event events.PaymentFailedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return application.RecordPaymentInput{}, "", fmt.Errorf("invalid payment failed event: %w", err)
		}
		orderID, err := uuid.Parse(event.Payload.OrderID)
		if err != nil {
			return application.RecordPaymentInput{}, "", fmt.Errorf("invalid order id %q: %w", event.Payload.OrderID, err)
		}
		return application.RecordPaymentInput{
			OrderID: orderID,
			Reason:  event.Payload.Reason,
		}, event.TraceID, nil

	default:
		return application.RecordPaymentInput{}, "", fmt.Errorf("unexpected routing key %q", routingKey)
	}
}

// PaymentEventsConsumer consumes payment outcome events
type PaymentEventsConsumer struct {
	consumer *rabbitmq.Consumer
	handler  *PaymentEventHandler
}

// NewPaymentEventsConsumer binds the orders payment queue to the payments exchange
func NewPaymentEventsConsumer(conn *rabbitmq.Connection, orders PaymentRecorder, maxRetries int, log *logger.Logger) (*PaymentEventsConsumer, error) {
	consumer, err := rabbitmq.NewConsumer(
		conn,
		events.QueueOrderPaymentEvents,
		events.ExchangePayments,
		[]string{events.RoutingKeyPaymentCompleted, events.RoutingKeyPaymentFailed},
		maxRetries,
		log,
	)
	if err != nil {
		return nil, err
	}

	return &PaymentEventsConsumer{
		consumer: consumer,
		handler:  NewPaymentEventHandler(orders, log),
	}, nil
}

// Start starts consuming payment events
func (c *PaymentEventsConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handler.Handle)
}
