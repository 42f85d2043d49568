package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bookvault/internal/orders/adapters/memory"
	"bookvault/internal/orders/domain"
	"bookvault/internal/orders/ports"
	"bookvault/pkg/errors"
	"bookvault/pkg/logger"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu      sync.Mutex
	created []*domain.Order
	changed []statusChange
	err     error
}

type statusChange struct {
	orderID uuid.UUID
	from    domain.OrderStatus
	to      domain.OrderStatus
}

func (m *MockEventPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, order)
	return m.err
}

func (m *MockEventPublisher) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, statusChange{orderID: order.ID, from: from, to: order.Status})
	return m.err
}

// MockIdempotencyStore is an in-memory ports.IdempotencyStore
type MockIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]uuid.UUID
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{keys: make(map[string]uuid.UUID)}
}

func (m *MockIdempotencyStore) Claim(ctx context.Context, key string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = uuid.Nil
	return uuid.Nil, true, nil
}

func (m *MockIdempotencyStore) Complete(ctx context.Context, key string, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// MockNoopCatalog accepts every reservation without tracking stock
type MockNoopCatalog struct{}

func (MockNoopCatalog) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, bool, error) {
	return &domain.Book{ID: id, Active: true, StockQuantity: 1 << 30}, true, nil
}

func (MockNoopCatalog) DecrementStock(ctx context.Context, id uuid.UUID, n int) error { return nil }
func (MockNoopCatalog) IncrementStock(ctx context.Context, id uuid.UUID, n int) error { return nil }

type fixedNumbers struct{ order string }

func (f fixedNumbers) OrderNumber(time.Time) string    { return f.order }
func (f fixedNumbers) TrackingNumber(time.Time) string { return "TRK-20240301-00001" }

// seqNumbers hands out distinct order numbers even under a frozen clock
type seqNumbers struct{ n atomic.Int64 }

func (s *seqNumbers) OrderNumber(time.Time) string {
	return fmt.Sprintf("BV-20240301120000-%03d", s.n.Add(1))
}

func (s *seqNumbers) TrackingNumber(time.Time) string { return "TRK-20240301-00001" }

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	uc        *OrderUseCase
	store     *memory.Store
	publisher *MockEventPublisher
	logs      *observer.ObservedLogs
	bookA     domain.Book
	bookB     domain.Book
	user      uuid.UUID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := memory.NewStore()
	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		logs:      logs,
		store:     store,
		publisher: &MockEventPublisher{},
		bookA:     domain.Book{ID: uuid.New(), Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Price: d("10.00"), StockQuantity: 5, Active: true},
		bookB:     domain.Book{ID: uuid.New(), Title: "Emma", Author: "Jane Austen", ISBN: "9780141439587", Price: d("20.00"), StockQuantity: 1, Active: true},
		user:      uuid.New(),
	}
	store.AddBook(f.bookA)
	store.AddBook(f.bookB)

	sm := domain.NewStateMachine(fixedNumbers{}, domain.WithClock(func() time.Time { return testClock }))
	opts = append([]Option{WithNumberGenerator(&seqNumbers{})}, opts...)
	f.uc = NewOrderUseCase(store, store, domain.NewCalculator(domain.DefaultPricingPolicy()), sm, f.publisher, &logger.Logger{Logger: zap.New(core)}, opts...)
	return f
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) input(items ...OrderItemInput) CreateOrderInput {
	return CreateOrderInput{
		UserID:        f.user,
		Items:         items,
		Shipping:      domain.ShippingAddress{Address: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"},
		Customer:      domain.Customer{Name: "Ada Reader", Email: "ada@example.com"},
		PaymentMethod: domain.PaymentMethodCreditCard,
	}
}

func (f *fixture) scenarioAInput() CreateOrderInput {
	return f.input(
		OrderItemInput{BookID: f.bookA.ID, Quantity: 2, UnitPrice: d("10.00")},
		OrderItemInput{BookID: f.bookB.ID, Quantity: 1, UnitPrice: d("20.00"), DiscountAmount: d("5.00")},
	)
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	b, ok := f.store.Book(id)
	require.True(t, ok)
	return b.StockQuantity
}

func (f *fixture) createOne(t *testing.T, qty int) *OrderSnapshot {
	t.Helper()
	order, err := f.uc.CreateOrder(context.Background(), f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: qty, UnitPrice: d("10.00")}))
	require.NoError(t, err)
	return order
}

func (f *fixture) advance(t *testing.T, id uuid.UUID, path ...domain.OrderStatus) {
	t.Helper()
	for _, s := range path {
		_, err := f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: id, Status: s})
		require.NoError(t, err)
	}
}

func TestCreateOrder_ScenarioA(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	order, err := f.uc.CreateOrder(ctx, f.scenarioAInput())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(d("35.00")), order.TotalAmount.String())
	assert.True(t, order.ShippingCost.Equal(d("9.99")))
	assert.True(t, order.TaxAmount.Equal(d("2.80")))
	assert.True(t, order.FinalAmount.Equal(d("47.79")), order.FinalAmount.String())
	assert.Equal(t, 3, f.stock(t, f.bookA.ID))
	assert.Equal(t, 0, f.stock(t, f.bookB.ID))

	require.Len(t, order.Items, 2)
	assert.Equal(t, f.bookA.ID, order.Items[0].BookID)
	assert.Equal(t, "Dune", order.Items[0].BookTitle)
	assert.Equal(t, "Jane Austen", order.Items[1].BookAuthor)
	assert.True(t, order.Items[1].FinalPrice.Equal(d("15.00")))

	stored, err := f.uc.GetOrderByNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.True(t, stored.FinalAmount.Equal(stored.TotalAmount.Add(stored.ShippingCost).Add(stored.TaxAmount).Sub(stored.DiscountAmount)))

	require.Len(t, f.publisher.created, 1)
	assert.Equal(t, order.ID, f.publisher.created[0].ID)
}

func TestCreateOrder_ScenarioB_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scarce := domain.Book{ID: uuid.New(), Title: "Rare", StockQuantity: 2, Active: true}
	f.store.AddBook(scarce)

	_, err := f.uc.CreateOrder(ctx, f.input(OrderItemInput{BookID: scarce.ID, Quantity: 3, UnitPrice: d("10.00")}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInsufficientStock))
	assert.Equal(t, 2, f.stock(t, scarce.ID))

	list, err := f.uc.ListOrdersByUser(ctx, f.user, ListOrdersInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), list.Total)
	assert.Empty(t, f.publisher.created)
}

func TestCreateOrder_LaterItemFailureRestoresEarlierReservations(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.CreateOrder(context.Background(), f.input(
		OrderItemInput{BookID: f.bookA.ID, Quantity: 4, UnitPrice: d("10.00")},
		OrderItemInput{BookID: f.bookB.ID, Quantity: 2, UnitPrice: d("20.00")},
	))

	assert.True(t, errors.Is(err, errors.CodeInsufficientStock))
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
	assert.Equal(t, 1, f.stock(t, f.bookB.ID))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	details := appErr.Details.(map[string]interface{})
	assert.Equal(t, f.bookB.ID.String(), details["book_id"])
	assert.Equal(t, 1, details["available"])
	assert.Equal(t, 2, details["requested"])
}

func TestCreateOrder_FirstFailingItemInSubmissionOrderIsReported(t *testing.T) {
	f := newFixture(t)
	missing := uuid.New()

	_, err := f.uc.CreateOrder(context.Background(), f.input(
		OrderItemInput{BookID: f.bookB.ID, Quantity: 9, UnitPrice: d("20.00")},
		OrderItemInput{BookID: missing, Quantity: 1, UnitPrice: d("20.00")},
	))

	assert.True(t, errors.Is(err, errors.CodeInsufficientStock), "got %v", err)
}

func TestCreateOrder_UnknownOrInactiveBook(t *testing.T) {
	f := newFixture(t)
	inactive := domain.Book{ID: uuid.New(), Title: "Withdrawn", StockQuantity: 10, Active: false}
	f.store.AddBook(inactive)

	for _, id := range []uuid.UUID{uuid.New(), inactive.ID} {
		_, err := f.uc.CreateOrder(context.Background(), f.input(OrderItemInput{BookID: id, Quantity: 1, UnitPrice: d("5")}))
		assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
	}
	assert.Equal(t, 10, f.stock(t, inactive.ID))
}

func TestCreateOrder_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(in *CreateOrderInput)
		code   string
	}{
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, errors.CodeValidation},
		{"no user", func(in *CreateOrderInput) { in.UserID = uuid.Nil }, errors.CodeValidation},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }, errors.CodeInvalidAmount},
		{"zero price", func(in *CreateOrderInput) { in.Items[0].UnitPrice = d("0") }, errors.CodeInvalidAmount},
		{"no email", func(in *CreateOrderInput) { in.Customer.Email = "" }, errors.CodeValidation},
		{"no country", func(in *CreateOrderInput) { in.Shipping.Country = "" }, errors.CodeValidation},
		{"bad payment method", func(in *CreateOrderInput) { in.PaymentMethod = "BARTER" }, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: 1, UnitPrice: d("10.00")})
			tt.mutate(&in)

			_, err := f.uc.CreateOrder(context.Background(), in)

			assert.True(t, errors.Is(err, tt.code), "got %v", err)
			assert.Equal(t, 5, f.stock(t, f.bookA.ID))
		})
	}
}

func TestCreateOrder_OrderNumberCollisionIsConflict(t *testing.T) {
	f := newFixture(t, WithNumberGenerator(fixedNumbers{order: "BV-20240301120000-007"}))
	ctx := context.Background()

	_, err := f.uc.CreateOrder(ctx, f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: 1, UnitPrice: d("10.00")}))
	require.NoError(t, err)

	_, err = f.uc.CreateOrder(ctx, f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: 2, UnitPrice: d("10.00")}))

	assert.True(t, errors.Is(err, errors.CodeConflict))
	assert.Equal(t, 4, f.stock(t, f.bookA.ID))
}

func TestCreateOrder_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = fmt.Errorf("broker down")

	order, err := f.uc.CreateOrder(context.Background(), f.scenarioAInput())

	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestCreateOrder_NoopCatalogLeavesStockAlone(t *testing.T) {
	store := memory.NewStore(memory.WithCatalog(MockNoopCatalog{}))
	book := domain.Book{ID: uuid.New(), Title: "Dune", StockQuantity: 1, Active: true}
	store.AddBook(book)
	uc := NewOrderUseCase(store, store, domain.NewCalculator(domain.DefaultPricingPolicy()), domain.NewStateMachine(nil), nil, logger.NewNop())
	f := &fixture{user: uuid.New()}

	order, err := uc.CreateOrder(context.Background(), f.input(OrderItemInput{BookID: book.ID, Quantity: 3, UnitPrice: d("10.00")}))
	require.NoError(t, err)

	_, err = uc.CancelOrder(context.Background(), CancelOrderInput{ID: order.ID, Reason: "test"})
	require.NoError(t, err)

	got, _ := store.Book(book.ID)
	assert.Equal(t, 1, got.StockQuantity)
}

func TestCreateOrder_Idempotent(t *testing.T) {
	idem := NewMockIdempotencyStore()
	f := newFixture(t, WithIdempotency(idem))
	ctx := context.Background()
	in := f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: 2, UnitPrice: d("10.00")})
	in.IdempotencyKey = "checkout-42"

	first, err := f.uc.CreateOrder(ctx, in)
	require.NoError(t, err)
	second, err := f.uc.CreateOrder(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, f.stock(t, f.bookA.ID))
	assert.Len(t, f.publisher.created, 1)

	// keys are scoped per user
	other := in
	other.UserID = uuid.New()
	third, err := f.uc.CreateOrder(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestCreateOrder_IdempotencyInFlightAndFailure(t *testing.T) {
	idem := NewMockIdempotencyStore()
	f := newFixture(t, WithIdempotency(idem))
	ctx := context.Background()

	in := f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: 9, UnitPrice: d("10.00")})
	in.IdempotencyKey = "retry-me"

	_, err := f.uc.CreateOrder(ctx, in)
	assert.True(t, errors.Is(err, errors.CodeInsufficientStock))

	// the failed attempt released its key so a corrected retry can proceed
	in.Items[0].Quantity = 1
	_, err = f.uc.CreateOrder(ctx, in)
	require.NoError(t, err)

	_, _, _ = idem.Claim(ctx, f.user.String()+":in-flight")
	busy := f.input(OrderItemInput{BookID: f.bookA.ID, Quantity: 1, UnitPrice: d("10.00")})
	busy.IdempotencyKey = "in-flight"
	_, err = f.uc.CreateOrder(ctx, busy)
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

func TestCreateOrder_NoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hot := domain.Book{ID: uuid.New(), Title: "Hot", StockQuantity: 10, Active: true}
	f.store.AddBook(hot)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 40; i++ {
		qty := i%3 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.CreateOrder(ctx, f.input(OrderItemInput{BookID: hot.ID, Quantity: qty, UnitPrice: d("1.00")}))
			if err == nil {
				mu.Lock()
				reserved += qty
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, errors.CodeInsufficientStock), "got %v", err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, reserved, 10)
	assert.Equal(t, 10-reserved, f.stock(t, hot.ID))
}

func TestCancelOrder_ScenarioC_RestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.uc.CreateOrder(ctx, f.scenarioAInput())
	require.NoError(t, err)

	cancelled, err := f.uc.CancelOrder(ctx, CancelOrderInput{ID: order.ID, Reason: "changed my mind"})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, testClock, *cancelled.CancelledAt)
	assert.Equal(t, "changed my mind", cancelled.CancellationReason)
	assert.False(t, cancelled.CanBeCancelled)
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
	assert.Equal(t, 1, f.stock(t, f.bookB.ID))

	require.Len(t, f.publisher.changed, 1)
	assert.Equal(t, statusChange{orderID: order.ID, from: domain.OrderStatusPending, to: domain.OrderStatusCancelled}, f.publisher.changed[0])
}

func TestCancelOrder_ConfirmedIsCancellable(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 2)
	f.advance(t, order.ID, domain.OrderStatusConfirmed)

	_, err := f.uc.CancelOrder(context.Background(), CancelOrderInput{ID: order.ID})

	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
}

func TestCancelOrder_TwiceReleasesOnce(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 2)

	_, err := f.uc.CancelOrder(context.Background(), CancelOrderInput{ID: order.ID})
	require.NoError(t, err)
	_, err = f.uc.CancelOrder(context.Background(), CancelOrderInput{ID: order.ID})

	assert.True(t, errors.Is(err, errors.CodeInvalidState))
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
}

func TestCancelOrder_ScenarioE_DeliveredIsInvalidState(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 1)
	f.advance(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered)

	_, err := f.uc.CancelOrder(context.Background(), CancelOrderInput{ID: order.ID, Reason: "late"})

	assert.True(t, errors.Is(err, errors.CodeInvalidState))
	stored, err := f.uc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	assert.Nil(t, stored.CancelledAt)
	assert.Equal(t, 4, f.stock(t, f.bookA.ID))
}

func TestCancelOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.CancelOrder(context.Background(), CancelOrderInput{ID: uuid.New()})

	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestTransitionStatus_ScenarioD_ShippedToPendingIsIllegal(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 1)
	f.advance(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped)

	_, err := f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: order.ID, Status: domain.OrderStatusPending})

	assert.True(t, errors.Is(err, errors.CodeIllegalTransition))
	stored, _ := f.uc.GetOrder(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)
}

func TestTransitionStatus_Soundness(t *testing.T) {
	paths := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:    nil,
		domain.OrderStatusConfirmed:  {domain.OrderStatusConfirmed},
		domain.OrderStatusProcessing: {domain.OrderStatusConfirmed, domain.OrderStatusProcessing},
		domain.OrderStatusShipped:    {domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped},
		domain.OrderStatusDelivered:  {domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered},
		domain.OrderStatusCancelled:  {domain.OrderStatusCancelled},
		domain.OrderStatusRefunded:   {domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	}

	for _, from := range domain.OrderStatuses {
		for _, to := range domain.OrderStatuses {
			if domain.CanTransition(from, to) {
				continue
			}
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				f := newFixture(t)
				order := f.createOne(t, 1)
				f.advance(t, order.ID, paths[from]...)
				before, err := f.uc.GetOrder(context.Background(), order.ID)
				require.NoError(t, err)
				stockBefore := f.stock(t, f.bookA.ID)

				_, err = f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: order.ID, Status: to})

				assert.True(t, errors.Is(err, errors.CodeIllegalTransition), "got %v", err)
				after, err := f.uc.GetOrder(context.Background(), order.ID)
				require.NoError(t, err)
				assert.Equal(t, before, after)
				assert.Equal(t, stockBefore, f.stock(t, f.bookA.ID))
			})
		}
	}
}

func TestTransitionStatus_ProcessingToCancelledReleasesStock(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 3)
	f.advance(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusProcessing)
	assert.Equal(t, 2, f.stock(t, f.bookA.ID))

	cancelled, err := f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: order.ID, Status: domain.OrderStatusCancelled, Reason: "lost in warehouse"})

	require.NoError(t, err)
	assert.Equal(t, "lost in warehouse", cancelled.CancellationReason)
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
}

func TestTransitionStatus_ShippedAndDeliveredSideEffects(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 1)
	f.advance(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusProcessing)

	shipped, err := f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: order.ID, Status: domain.OrderStatusShipped})
	require.NoError(t, err)
	assert.Equal(t, "TRK-20240301-00001", shipped.TrackingNumber)
	require.NotNil(t, shipped.EstimatedDeliveryDate)
	assert.Equal(t, testClock.Add(7*24*time.Hour), *shipped.EstimatedDeliveryDate)

	delivered, err := f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: order.ID, Status: domain.OrderStatusDelivered})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, testClock, *delivered.DeliveredAt)

	// refunds do not put books back on the shelf
	_, err = f.uc.TransitionStatus(context.Background(), TransitionStatusInput{ID: order.ID, Status: domain.OrderStatusRefunded})
	require.NoError(t, err)
	assert.Equal(t, 4, f.stock(t, f.bookA.ID))

	assert.Len(t, f.publisher.changed, 5)
}

// UpdateTracking is not gated by status. This mirrors long-standing
// behaviour that looks unintentional; the test pins it so tightening it is
// a deliberate change.
func TestUpdateTracking_UngatedOnTerminalOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eta := testClock.Add(72 * time.Hour)

	cancelled := f.createOne(t, 1)
	_, err := f.uc.CancelOrder(ctx, CancelOrderInput{ID: cancelled.ID})
	require.NoError(t, err)

	updated, err := f.uc.UpdateTracking(ctx, UpdateTrackingInput{ID: cancelled.ID, TrackingNumber: "UPS-1Z999", EstimatedDeliveryDate: &eta})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, "UPS-1Z999", updated.TrackingNumber)
	assert.Equal(t, eta, *updated.EstimatedDeliveryDate)
	assert.Len(t, f.publisher.changed, 1)
}

func TestUpdateTracking_ThenShipKeepsCarrierNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOne(t, 1)
	f.advance(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusProcessing)

	_, err := f.uc.UpdateTracking(ctx, UpdateTrackingInput{ID: order.ID, TrackingNumber: "DHL-42"})
	require.NoError(t, err)
	shipped, err := f.uc.TransitionStatus(ctx, TransitionStatusInput{ID: order.ID, Status: domain.OrderStatusShipped})
	require.NoError(t, err)

	assert.Equal(t, "DHL-42", shipped.TrackingNumber)
}

func TestUpdateTracking_Validation(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 1)

	_, err := f.uc.UpdateTracking(context.Background(), UpdateTrackingInput{ID: order.ID})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.uc.UpdateTracking(context.Background(), UpdateTrackingInput{ID: uuid.New(), TrackingNumber: "X"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestRecordPayment_CompletedConfirmsPendingOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 1)

	paid, err := f.uc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID, TransactionID: "txn_123", Succeeded: true})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, paid.PaymentStatus)
	assert.Equal(t, "txn_123", paid.PaymentTransactionID)

	// redelivery of the same event is harmless
	again, err := f.uc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID, TransactionID: "txn_123", Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, again.Status)
	assert.Len(t, f.publisher.changed, 1)
}

func TestRecordPayment_CompletedOnCancelledOrderWarns(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 1)
	_, err := f.uc.CancelOrder(context.Background(), CancelOrderInput{ID: order.ID, Reason: "changed my mind"})
	require.NoError(t, err)

	paid, err := f.uc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID, TransactionID: "txn_late", Succeeded: true})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, paid.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, paid.PaymentStatus)

	warnings := f.logs.FilterMessage("payment settled for a closed order").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zap.WarnLevel, warnings[0].Level)
	assert.Equal(t, "txn_late", warnings[0].ContextMap()["transaction_id"])
}

func TestRecordPayment_FailedCancelsAndReleases(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 2)

	failed, err := f.uc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID, Succeeded: false, Reason: "card declined"})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, failed.Status)
	assert.Equal(t, domain.PaymentStatusFailed, failed.PaymentStatus)
	assert.Equal(t, "payment failed: card declined", failed.CancellationReason)
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
}

func TestRecordPayment_FailedLongMultiByteReasonStaysValidUTF8(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 2)

	failed, err := f.uc.RecordPayment(context.Background(), RecordPaymentInput{
		OrderID:   order.ID,
		Succeeded: false,
		Reason:    strings.Repeat("a", 483) + "€€",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, failed.Status)
	assert.True(t, utf8.ValidString(failed.CancellationReason))
	assert.LessOrEqual(t, len(failed.CancellationReason), domain.MaxReasonLength)
	assert.Equal(t, "payment failed: "+strings.Repeat("a", 483), failed.CancellationReason)
	assert.Equal(t, 5, f.stock(t, f.bookA.ID))
}

func TestRecordPayment_FailedAfterProcessingOnlyMarksPayment(t *testing.T) {
	f := newFixture(t)
	order := f.createOne(t, 2)
	f.advance(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusProcessing)

	failed, err := f.uc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID, Succeeded: false})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, failed.Status)
	assert.Equal(t, domain.PaymentStatusFailed, failed.PaymentStatus)
	assert.Equal(t, 3, f.stock(t, f.bookA.ID))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.createOne(t, 1)
	}
	first := f.createOne(t, 1)
	f.advance(t, first.ID, domain.OrderStatusConfirmed)

	page, err := f.uc.ListOrdersByUser(ctx, f.user, ListOrdersInput{Page: 1, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Orders, 1)

	confirmed, err := f.uc.ListOrdersByStatus(ctx, domain.OrderStatusConfirmed, ListOrdersInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), confirmed.Total)
	assert.Equal(t, first.ID, confirmed.Orders[0].ID)
	assert.Equal(t, defaultPageSize, confirmed.Size)

	_, err = f.uc.ListOrdersByStatus(ctx, "LOST", ListOrdersInput{})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.uc.ListOrdersByUser(ctx, uuid.Nil, ListOrdersInput{})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestListOrders_PageOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createOne(t, 1)

	tests := []struct {
		name  string
		input ListOrdersInput
	}{
		{"offset past int32", ListOrdersInput{Page: maxOffset/20 + 1, Size: 20}},
		{"offset overflows int", ListOrdersInput{Page: 922337203685477580, Size: 20}},
		{"default size", ListOrdersInput{Page: math.MaxInt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.ListOrdersByUser(ctx, f.user, tt.input)
			assert.True(t, errors.Is(err, errors.CodeValidation))

			_, err = f.uc.ListOrdersByStatus(ctx, domain.OrderStatusPending, tt.input)
			assert.True(t, errors.Is(err, errors.CodeValidation))
		})
	}

	last, err := f.uc.ListOrdersByUser(ctx, f.user, ListOrdersInput{Page: maxOffset / 20, Size: 20})
	require.NoError(t, err)
	assert.Empty(t, last.Orders)
	assert.Equal(t, int64(1), last.Total)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.GetOrder(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.uc.GetOrderByNumber(context.Background(), "BV-nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

var _ ports.IdempotencyStore = (*MockIdempotencyStore)(nil)
var _ ports.EventPublisher = (*MockEventPublisher)(nil)
