package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookvault/internal/orders/domain"
)

// OrderSnapshot is the read-only view of an order handed to callers
type OrderSnapshot struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	OrderNumber string
	Status      domain.OrderStatus

	TotalAmount    decimal.Decimal
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal

	Shipping            domain.ShippingAddress
	FullShippingAddress string
	Customer            domain.Customer
	Notes               string

	PaymentMethod        domain.PaymentMethod
	PaymentStatus        domain.PaymentStatus
	PaymentTransactionID string

	TrackingNumber        string
	EstimatedDeliveryDate *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	CancellationReason    string

	ItemCount      int
	TotalQuantity  int
	CanBeCancelled bool
	Items          []OrderItemSnapshot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItemSnapshot is the read-only view of an order line
type OrderItemSnapshot struct {
	ID           uuid.UUID
	BookID       uuid.UUID
	BookTitle    string
	BookAuthor   string
	BookISBN     string
	BookImageURL string

	Quantity       int
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalPrice     decimal.Decimal
	FinalPrice     decimal.Decimal
}

// NewOrderSnapshot projects an order. The snapshot shares no memory with it.
func NewOrderSnapshot(order *domain.Order) *OrderSnapshot {
	o := order.Clone()

	s := &OrderSnapshot{
		ID:                    o.ID,
		UserID:                o.UserID,
		OrderNumber:           o.OrderNumber,
		Status:                o.Status,
		TotalAmount:           o.TotalAmount,
		ShippingCost:          o.ShippingCost,
		TaxAmount:             o.TaxAmount,
		DiscountAmount:        o.DiscountAmount,
		FinalAmount:           o.FinalAmount(),
		Shipping:              o.Shipping,
		FullShippingAddress:   o.FullShippingAddress(),
		Customer:              o.Customer,
		Notes:                 o.Notes,
		PaymentMethod:         o.PaymentMethod,
		PaymentStatus:         o.PaymentStatus,
		PaymentTransactionID:  o.PaymentTransactionID,
		TrackingNumber:        o.TrackingNumber,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		DeliveredAt:           o.DeliveredAt,
		CancelledAt:           o.CancelledAt,
		CancellationReason:    o.CancellationReason,
		ItemCount:             o.ItemCount(),
		TotalQuantity:         o.TotalQuantity(),
		CanBeCancelled:        o.CanBeCancelled(),
		Items:                 make([]OrderItemSnapshot, len(o.Items)),
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}

	for i, item := range o.Items {
		s.Items[i] = OrderItemSnapshot{
			ID:             item.ID,
			BookID:         item.BookID,
			BookTitle:      item.BookTitle,
			BookAuthor:     item.BookAuthor,
			BookISBN:       item.BookISBN,
			BookImageURL:   item.BookImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			TotalPrice:     item.TotalPrice(),
			FinalPrice:     item.FinalPrice(),
		}
	}

	return s
}
