package infrastructure

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bookvault/internal/orders/application"
	"bookvault/internal/orders/domain"
	"bookvault/pkg/errors"
)

// OrderItemRequest is one requested line
type OrderItemRequest struct {
	BookID         string          `json:"book_id" binding:"required,uuid"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price" swaggertype:"string" example:"10.00"`
	DiscountAmount decimal.Decimal `json:"discount_amount" swaggertype:"string" example:"0.00"`
	BookTitle      string          `json:"book_title,omitempty"`
	BookAuthor     string          `json:"book_author,omitempty"`
	BookISBN       string          `json:"book_isbn,omitempty"`
	BookImageURL   string          `json:"book_image_url,omitempty"`
}

// CreateOrderRequest is the request body for placing an order
type CreateOrderRequest struct {
	Items              []OrderItemRequest `json:"items" binding:"required,dive"`
	ShippingAddress    string             `json:"shipping_address"`
	ShippingCity       string             `json:"shipping_city"`
	ShippingState      string             `json:"shipping_state,omitempty"`
	ShippingPostalCode string             `json:"shipping_postal_code,omitempty"`
	ShippingCountry    string             `json:"shipping_country"`
	CustomerName       string             `json:"customer_name"`
	CustomerEmail      string             `json:"customer_email"`
	CustomerPhone      string             `json:"customer_phone,omitempty"`
	PaymentMethod      string             `json:"payment_method" example:"CREDIT_CARD"`
	Notes              string             `json:"notes,omitempty"`
}

func (r CreateOrderRequest) toInput(userID uuid.UUID, idempotencyKey string) (application.CreateOrderInput, error) {
	method, err := domain.ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return application.CreateOrderInput{}, err
	}

	items := make([]application.OrderItemInput, len(r.Items))
	for i, item := range r.Items {
		bookID, err := uuid.Parse(item.BookID)
		if err != nil {
			return application.CreateOrderInput{}, errors.NewValidation("invalid book_id", map[string]interface{}{
				"index":   i,
				"book_id": item.BookID,
			})
		}
		items[i] = application.OrderItemInput{
			BookID:         bookID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			BookTitle:      item.BookTitle,
			BookAuthor:     item.BookAuthor,
			BookISBN:       item.BookISBN,
			BookImageURL:   item.BookImageURL,
		}
	}

	return application.CreateOrderInput{
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		Items:          items,
		Shipping: domain.ShippingAddress{
			Address:    r.ShippingAddress,
			City:       r.ShippingCity,
			State:      r.ShippingState,
			PostalCode: r.ShippingPostalCode,
			Country:    r.ShippingCountry,
		},
		Customer: domain.Customer{
			Name:  r.CustomerName,
			Email: r.CustomerEmail,
			Phone: r.CustomerPhone,
		},
		PaymentMethod: method,
		Notes:         r.Notes,
	}, nil
}

// UpdateStatusRequest is the request body for a status transition
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" example:"SHIPPED"`
	Reason string `json:"reason,omitempty"`
}

// CancelOrderRequest is the optional request body for a cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// UpdateTrackingRequest is the request body for carrier tracking details
type UpdateTrackingRequest struct {
	TrackingNumber        string     `json:"tracking_number" binding:"required"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
}

// OrderItemResponse is one order line. Money is a fixed two-decimal string.
type OrderItemResponse struct {
	ID             string `json:"id"`
	BookID         string `json:"book_id"`
	BookTitle      string `json:"book_title"`
	BookAuthor     string `json:"book_author,omitempty"`
	BookISBN       string `json:"book_isbn,omitempty"`
	BookImageURL   string `json:"book_image_url,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	DiscountAmount string `json:"discount_amount"`
	TotalPrice     string `json:"total_price"`
	FinalPrice     string `json:"final_price"`
}

// OrderResponse is the response body for order operations
type OrderResponse struct {
	ID                    string              `json:"id"`
	UserID                string              `json:"user_id"`
	OrderNumber           string              `json:"order_number"`
	Status                string              `json:"status"`
	TotalAmount           string              `json:"total_amount"`
	ShippingCost          string              `json:"shipping_cost"`
	TaxAmount             string              `json:"tax_amount"`
	DiscountAmount        string              `json:"discount_amount"`
	FinalAmount           string              `json:"final_amount"`
	ShippingAddress       string              `json:"shipping_address"`
	ShippingCity          string              `json:"shipping_city"`
	ShippingState         string              `json:"shipping_state,omitempty"`
	ShippingPostalCode    string              `json:"shipping_postal_code,omitempty"`
	ShippingCountry       string              `json:"shipping_country"`
	FullShippingAddress   string              `json:"full_shipping_address"`
	CustomerName          string              `json:"customer_name"`
	CustomerEmail         string              `json:"customer_email"`
	CustomerPhone         string              `json:"customer_phone,omitempty"`
	Notes                 string              `json:"notes,omitempty"`
	PaymentMethod         string              `json:"payment_method"`
	PaymentStatus         string              `json:"payment_status"`
	PaymentTransactionID  string              `json:"payment_transaction_id,omitempty"`
	TrackingNumber        string              `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time          `json:"estimated_delivery_date,omitempty"`
	DeliveredAt           *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	CancellationReason    string              `json:"cancellation_reason,omitempty"`
	ItemCount             int                 `json:"item_count"`
	TotalQuantity         int                 `json:"total_quantity"`
	CanBeCancelled        bool                `json:"can_be_cancelled"`
	Items                 []OrderItemResponse `json:"items"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// OrderListResponse is one page of orders
type OrderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"total_pages"`
}

func newOrderResponse(s *application.OrderSnapshot) OrderResponse {
	resp := OrderResponse{
		ID:                    s.ID.String(),
		UserID:                s.UserID.String(),
		OrderNumber:           s.OrderNumber,
		Status:                string(s.Status),
		TotalAmount:           s.TotalAmount.StringFixed(2),
		ShippingCost:          s.ShippingCost.StringFixed(2),
		TaxAmount:             s.TaxAmount.StringFixed(2),
		DiscountAmount:        s.DiscountAmount.StringFixed(2),
		FinalAmount:           s.FinalAmount.StringFixed(2),
		ShippingAddress:       s.Shipping.Address,
		ShippingCity:          s.Shipping.City,
		ShippingState:         s.Shipping.State,
		ShippingPostalCode:    s.Shipping.PostalCode,
		ShippingCountry:       s.Shipping.Country,
		FullShippingAddress:   s.FullShippingAddress,
		CustomerName:          s.Customer.Name,
		CustomerEmail:         s.Customer.Email,
		CustomerPhone:         s.Customer.Phone,
		Notes:                 s.Notes,
		PaymentMethod:         string(s.PaymentMethod),
		PaymentStatus:         string(s.PaymentStatus),
		PaymentTransactionID:  s.PaymentTransactionID,
		TrackingNumber:        s.TrackingNumber,
		EstimatedDeliveryDate: s.EstimatedDeliveryDate,
		DeliveredAt:           s.DeliveredAt,
		CancelledAt:           s.CancelledAt,
		CancellationReason:    s.CancellationReason,
		ItemCount:             s.ItemCount,
		TotalQuantity:         s.TotalQuantity,
		CanBeCancelled:        s.CanBeCancelled,
		Items:                 make([]OrderItemResponse, len(s.Items)),
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
	for i, item := range s.Items {
		resp.Items[i] = OrderItemResponse{
			ID:             item.ID.String(),
			BookID:         item.BookID.String(),
			BookTitle:      item.BookTitle,
			BookAuthor:     item.BookAuthor,
			BookISBN:       item.BookISBN,
			BookImageURL:   item.BookImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice.StringFixed(2),
			DiscountAmount: item.DiscountAmount.StringFixed(2),
			TotalPrice:     item.TotalPrice.StringFixed(2),
			FinalPrice:     item.FinalPrice.StringFixed(2),
		}
	}
	return resp
}

func newOrderListResponse(out *application.ListOrdersOutput) OrderListResponse {
	resp := OrderListResponse{
		Orders:     make([]OrderResponse, len(out.Orders)),
		Page:       out.Page,
		Size:       out.Size,
		Total:      out.Total,
		TotalPages: out.TotalPages,
	}
	for i, o := range out.Orders {
		resp.Orders[i] = newOrderResponse(o)
	}
	return resp
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.NewValidation("invalid "+field, map[string]interface{}{field: raw})
	}
	return id, nil
}
