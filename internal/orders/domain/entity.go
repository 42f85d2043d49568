package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// OrderStatuses lists every status in lifecycle order
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// ParseOrderStatus converts user input into an OrderStatus
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range OrderStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", NewUnknownEnum("status", s)
}

// PaymentMethod is how the customer pays
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard      PaymentMethod = "DEBIT_CARD"
	PaymentMethodPayPal         PaymentMethod = "PAYPAL"
	PaymentMethodStripe         PaymentMethod = "STRIPE"
	PaymentMethodApplePay       PaymentMethod = "APPLE_PAY"
	PaymentMethodGooglePay      PaymentMethod = "GOOGLE_PAY"
	PaymentMethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodCrypto         PaymentMethod = "CRYPTOCURRENCY"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodCreditCard,
	PaymentMethodDebitCard,
	PaymentMethodPayPal,
	PaymentMethodStripe,
	PaymentMethodApplePay,
	PaymentMethodGooglePay,
	PaymentMethodBankTransfer,
	PaymentMethodCashOnDelivery,
	PaymentMethodCrypto,
}

// ParsePaymentMethod converts user input into a PaymentMethod
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range paymentMethods {
		if method == known {
			return method, nil
		}
	}
	return "", NewUnknownEnum("payment_method", s)
}

// PaymentStatus tracks the payment side of an order
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusCancelled         PaymentStatus = "CANCELLED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusDisputed          PaymentStatus = "DISPUTED"
	PaymentStatusExpired           PaymentStatus = "EXPIRED"
)

// Field limits enforced on placement
const (
	MaxAddressLength     = 200
	MaxCityLength        = 100
	MaxStateLength       = 100
	MaxPostalCodeLength  = 20
	MaxCountryLength     = 100
	MaxEmailLength       = 100
	MaxNameLength        = 100
	MaxPhoneLength       = 20
	MaxNotesLength       = 1000
	MaxReasonLength      = 500
	MaxTrackingLength    = 100
	MaxOrderNumberLength = 50
)

// Metadata is the identity and audit block shared by persisted entities
type Metadata struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newMetadata(now time.Time) Metadata {
	return Metadata{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch bumps UpdatedAt
func (m *Metadata) Touch(now time.Time) {
	m.UpdatedAt = now
}

// ShippingAddress is where the order goes
type ShippingAddress struct {
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Full formats the address on one line, skipping empty parts
func (a ShippingAddress) Full() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Address, a.City, a.State, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Customer is the contact captured at checkout
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Order represents the order domain entity
type Order struct {
	Metadata

	UserID      uuid.UUID
	OrderNumber string
	Status      OrderStatus

	TotalAmount    decimal.Decimal
	ShippingCost   decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal

	Shipping ShippingAddress
	Customer Customer
	Notes    string

	PaymentMethod        PaymentMethod
	PaymentStatus        PaymentStatus
	PaymentTransactionID string

	TrackingNumber        string
	EstimatedDeliveryDate *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	CancellationReason    string

	Items []OrderItem
}

// FinalAmount is always derived from the stored amounts
func (o *Order) FinalAmount() decimal.Decimal {
	return o.TotalAmount.Add(o.ShippingCost).Add(o.TaxAmount).Sub(o.DiscountAmount)
}

// CanBeCancelled reports whether an explicit cancellation is allowed
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// ItemCount is the number of distinct lines
func (o *Order) ItemCount() int {
	return len(o.Items)
}

// TotalQuantity sums quantities over all lines
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// FullShippingAddress formats the shipping address on one line
func (o *Order) FullShippingAddress() string {
	return o.Shipping.Full()
}

// UpdateTracking overwrites tracking details. It is not gated by status.
func (o *Order) UpdateTracking(number string, eta *time.Time, now time.Time) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return NewValidationError("tracking_number is required")
	}
	if len(number) > MaxTrackingLength {
		return NewFieldTooLong("tracking_number", MaxTrackingLength)
	}
	o.TrackingNumber = number
	if eta != nil {
		t := *eta
		o.EstimatedDeliveryDate = &t
	}
	o.Touch(now)
	return nil
}

// Clone returns a deep copy so callers can mutate freely
func (o *Order) Clone() *Order {
	c := *o
	c.EstimatedDeliveryDate = cloneTime(o.EstimatedDeliveryDate)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// OrderParams carries everything needed to place an order
type OrderParams struct {
	UserID        uuid.UUID
	OrderNumber   string
	Shipping      ShippingAddress
	Customer      Customer
	PaymentMethod PaymentMethod
	Notes         string
	Items         []OrderItem
	Quote         Quote
	Now           time.Time
}

// NewOrder creates a new PENDING order with validation
func NewOrder(p OrderParams) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if p.UserID == uuid.Nil {
		return nil, ErrUserIDRequired
	}
	if err := validateOrderNumber(p.OrderNumber); err != nil {
		return nil, err
	}
	if err := validateShipping(p.Shipping); err != nil {
		return nil, err
	}
	if err := validateCustomer(p.Customer); err != nil {
		return nil, err
	}
	if _, err := ParsePaymentMethod(string(p.PaymentMethod)); err != nil {
		return nil, err
	}
	if len(p.Notes) > MaxNotesLength {
		return nil, NewFieldTooLong("notes", MaxNotesLength)
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	order := &Order{
		Metadata:       newMetadata(now),
		UserID:         p.UserID,
		OrderNumber:    p.OrderNumber,
		Status:         OrderStatusPending,
		TotalAmount:    p.Quote.TotalAmount,
		ShippingCost:   p.Quote.ShippingCost,
		TaxAmount:      p.Quote.TaxAmount,
		DiscountAmount: decimal.Zero,
		Shipping:       p.Shipping,
		Customer:       p.Customer,
		Notes:          p.Notes,
		PaymentMethod:  p.PaymentMethod,
		PaymentStatus:  PaymentStatusPending,
		Items:          make([]OrderItem, len(p.Items)),
	}
	for i, item := range p.Items {
		item.Metadata = newMetadata(now)
		order.Items[i] = item
	}

	// the quote and the items must agree or the ledger would not balance
	var sum decimal.Decimal
	for _, item := range order.Items {
		sum = sum.Add(item.FinalPrice())
	}
	if !sum.Equal(order.TotalAmount) {
		return nil, NewInvalidAmount("total amount does not match items", map[string]interface{}{
			"total_amount": order.TotalAmount.StringFixed(2),
			"items_total":  sum.StringFixed(2),
		})
	}

	return order, nil
}

// OrderItem is one line of an order
type OrderItem struct {
	Metadata

	BookID       uuid.UUID
	BookTitle    string
	BookAuthor   string
	BookISBN     string
	BookImageURL string

	Quantity       int
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// TotalPrice is UnitPrice × Quantity
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// FinalPrice is TotalPrice less the line discount
func (i OrderItem) FinalPrice() decimal.Decimal {
	return i.TotalPrice().Sub(i.DiscountAmount)
}

// OrderItemParams describes a requested line
type OrderItemParams struct {
	BookID         uuid.UUID
	BookTitle      string
	BookAuthor     string
	BookISBN       string
	BookImageURL   string
	Quantity       int
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// NewOrderItem creates a validated order line
func NewOrderItem(p OrderItemParams) (OrderItem, error) {
	if p.BookID == uuid.Nil {
		return OrderItem{}, NewValidationError("book_id is required")
	}
	if err := ValidateLine(p.BookID, p.Quantity, p.UnitPrice, p.DiscountAmount); err != nil {
		return OrderItem{}, err
	}
	return OrderItem{
		BookID:         p.BookID,
		BookTitle:      p.BookTitle,
		BookAuthor:     p.BookAuthor,
		BookISBN:       p.BookISBN,
		BookImageURL:   p.BookImageURL,
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice,
		DiscountAmount: p.DiscountAmount,
	}, nil
}

// FillFromBook copies catalog details into snapshot fields left empty
func (i *OrderItem) FillFromBook(b *Book) {
	if b == nil {
		return
	}
	if i.BookTitle == "" {
		i.BookTitle = b.Title
	}
	if i.BookAuthor == "" {
		i.BookAuthor = b.Author
	}
	if i.BookISBN == "" {
		i.BookISBN = b.ISBN
	}
	if i.BookImageURL == "" {
		i.BookImageURL = b.CoverImageURL
	}
}

// Book is the slice of a catalog record the order engine reads
type Book struct {
	ID            uuid.UUID
	Title         string
	Author        string
	ISBN          string
	CoverImageURL string
	Price         decimal.Decimal
	StockQuantity int
	Active        bool
}

// IsAvailable reports whether the book can be sold at all
func (b *Book) IsAvailable() bool {
	return b.Active && b.StockQuantity > 0
}

func validateOrderNumber(n string) error {
	if strings.TrimSpace(n) == "" {
		return NewValidationError("order_number is required")
	}
	if len(n) > MaxOrderNumberLength {
		return NewFieldTooLong("order_number", MaxOrderNumberLength)
	}
	return nil
}

func validateShipping(a ShippingAddress) error {
	required := []struct {
		field string
		value string
		max   int
	}{
		{"shipping_address", a.Address, MaxAddressLength},
		{"shipping_city", a.City, MaxCityLength},
		{"shipping_country", a.Country, MaxCountryLength},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field + " is required")
		}
		if len(r.value) > r.max {
			return NewFieldTooLong(r.field, r.max)
		}
	}
	if len(a.State) > MaxStateLength {
		return NewFieldTooLong("shipping_state", MaxStateLength)
	}
	if len(a.PostalCode) > MaxPostalCodeLength {
		return NewFieldTooLong("shipping_postal_code", MaxPostalCodeLength)
	}
	return nil
}

func validateCustomer(c Customer) error {
	if strings.TrimSpace(c.Email) == "" {
		return NewValidationError("customer_email is required")
	}
	if len(c.Email) > MaxEmailLength {
		return NewFieldTooLong("customer_email", MaxEmailLength)
	}
	if !strings.Contains(c.Email, "@") {
		return NewValidationError("customer_email must be a valid email address")
	}
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("customer_name is required")
	}
	if len(c.Name) > MaxNameLength {
		return NewFieldTooLong("customer_name", MaxNameLength)
	}
	if len(c.Phone) > MaxPhoneLength {
		return NewFieldTooLong("customer_phone", MaxPhoneLength)
	}
	return nil
}
