package events

import "time"

// Exchange names
const (
	ExchangeOrders   = "orders.events"
	ExchangePayments = "payments.events"
)

// Routing keys
const (
	RoutingKeyOrderCreated       = "order.created"
	RoutingKeyOrderStatusChanged = "order.status_changed"
	RoutingKeyPaymentCompleted   = "payment.completed"
	RoutingKeyPaymentFailed      = "payment.failed"
)

// Queue names
const (
	QueueOrderPaymentEvents = "orders.payment-events"
)

const eventVersion = "1.0"

// Envelope is the common shape of every event on the wire
type Envelope[T any] struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Payload   T         `json:"payload"`
}

// OrderCreatedEvent is published when an order is created
type OrderCreatedEvent = Envelope[OrderCreatedPayload]

// OrderCreatedPayload contains order data
type OrderCreatedPayload struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	FinalAmount string    `json:"final_amount"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(payload OrderCreatedPayload, traceID string) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		Version:   eventVersion,
		EventType: RoutingKeyOrderCreated,
		Timestamp: time.Now(),
		TraceID:   traceID,
		Payload:   payload,
	}
}

// OrderStatusChangedEvent is published after every committed status change
type OrderStatusChangedEvent = Envelope[OrderStatusChangedPayload]

// OrderStatusChangedPayload describes a single transition
type OrderStatusChangedPayload struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Reason      string    `json:"reason,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(payload OrderStatusChangedPayload, traceID string) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		Version:   eventVersion,
		EventType: RoutingKeyOrderStatusChanged,
		Timestamp: time.Now(),
		TraceID:   traceID,
		Payload:   payload,
	}
}

// PaymentCompletedEvent is consumed when a payment provider settles an order
type PaymentCompletedEvent = Envelope[PaymentCompletedPayload]

// PaymentCompletedPayload carries the settled transaction
type PaymentCompletedPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
}

// PaymentFailedEvent is consumed when a payment is declined
type PaymentFailedEvent = Envelope[PaymentFailedPayload]

// PaymentFailedPayload carries the decline reason
type PaymentFailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}
