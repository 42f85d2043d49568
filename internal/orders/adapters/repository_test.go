package adapters

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookvault/internal/orders/domain"
)

func placedOrder(t *testing.T) *domain.Order {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := domain.NewOrderItem(domain.OrderItemParams{
		BookID: uuid.New(), BookTitle: "Dune", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	second, err := domain.NewOrderItem(domain.OrderItemParams{
		BookID: uuid.New(), BookTitle: "Emma", Quantity: 1,
		UnitPrice: decimal.RequireFromString("20.00"), DiscountAmount: decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)

	order, err := domain.NewOrder(domain.OrderParams{
		UserID:        uuid.New(),
		OrderNumber:   "BV-20240301120000-042",
		Shipping:      domain.ShippingAddress{Address: "1 Main St", City: "Austin", State: "TX", Country: "US"},
		Customer:      domain.Customer{Name: "Ada", Email: "ada@example.com"},
		PaymentMethod: domain.PaymentMethodCreditCard,
		Items:         []domain.OrderItem{first, second},
		Quote: domain.Quote{
			TotalAmount:  decimal.RequireFromString("35.00"),
			ShippingCost: decimal.RequireFromString("9.99"),
			TaxAmount:    decimal.RequireFromString("2.80"),
		},
		Now: now,
	})
	require.NoError(t, err)
	return order
}

func TestToModel_StoresDerivedAmountsAndItemOrder(t *testing.T) {
	order := placedOrder(t)
	eta := order.CreatedAt.Add(7 * 24 * time.Hour)
	order.EstimatedDeliveryDate = &eta

	model := toModel(order)

	assert.Equal(t, "47.79", model.FinalAmount.StringFixed(2))
	assert.Equal(t, "PENDING", model.Status)
	require.Len(t, model.Items, 2)
	assert.Equal(t, 0, model.Items[0].Position)
	assert.Equal(t, 1, model.Items[1].Position)
	assert.Equal(t, order.ID, model.Items[1].OrderID)
	assert.Equal(t, "20.00", model.Items[1].TotalPrice.StringFixed(2))
	assert.Equal(t, "15.00", model.Items[1].FinalPrice.StringFixed(2))

	back := toDomain(model)
	assert.Equal(t, order.OrderNumber, back.OrderNumber)
	assert.Equal(t, order.Shipping, back.Shipping)
	assert.True(t, back.FinalAmount().Equal(order.FinalAmount()))
	assert.Equal(t, eta, *back.EstimatedDeliveryDate)
	assert.Equal(t, "Emma", back.Items[1].BookTitle)
}
