package application

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bookvault/internal/orders/domain"
	"bookvault/internal/orders/ports"
	"bookvault/pkg/errors"
	"bookvault/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// offsets stay within an int4 so they fit every backend's OFFSET
	maxOffset = math.MaxInt32
)

// OrderUseCase handles order business logic
type OrderUseCase struct {
	uow         ports.UnitOfWork
	repo        ports.OrderRepository
	calc        *domain.Calculator
	sm          *domain.StateMachine
	numbers     domain.NumberGenerator
	publisher   ports.EventPublisher
	idempotency ports.IdempotencyStore
	log         *logger.Logger
}

// Option customizes an OrderUseCase
type Option func(*OrderUseCase)

// WithIdempotency enables Idempotency-Key deduplication on CreateOrder
func WithIdempotency(store ports.IdempotencyStore) Option {
	return func(uc *OrderUseCase) {
		uc.idempotency = store
	}
}

// WithNumberGenerator replaces the order number generator
func WithNumberGenerator(gen domain.NumberGenerator) Option {
	return func(uc *OrderUseCase) {
		uc.numbers = gen
	}
}

// NewOrderUseCase creates a new order use case. repo serves reads outside
// of a transaction; every write goes through uow.
func NewOrderUseCase(
	uow ports.UnitOfWork,
	repo ports.OrderRepository,
	calc *domain.Calculator,
	sm *domain.StateMachine,
	publisher ports.EventPublisher,
	log *logger.Logger,
	opts ...Option,
) *OrderUseCase {
	uc := &OrderUseCase{
		uow:       uow,
		repo:      repo,
		calc:      calc,
		sm:        sm,
		numbers:   domain.RandomNumberGenerator{},
		publisher: publisher,
		log:       log,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// OrderItemInput is one requested line
type OrderItemInput struct {
	BookID         uuid.UUID
	Quantity       int
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	BookTitle      string
	BookAuthor     string
	BookISBN       string
	BookImageURL   string
}

// CreateOrderInput represents the input for creating an order
type CreateOrderInput struct {
	UserID         uuid.UUID
	IdempotencyKey string
	Items          []OrderItemInput
	Shipping       domain.ShippingAddress
	Customer       domain.Customer
	PaymentMethod  domain.PaymentMethod
	Notes          string
}

// CreateOrder prices the cart, reserves stock and persists the order in a
// single transaction
func (uc *OrderUseCase) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderSnapshot, error) {
	if len(input.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	if input.UserID == uuid.Nil {
		return nil, domain.ErrUserIDRequired
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && uc.idempotency != nil {
		key = input.UserID.String() + ":" + key
		existing, claimed, err := uc.idempotency.Claim(ctx, key)
		switch {
		case err != nil:
			uc.log.WithContext(ctx).Warn("idempotency store unavailable, continuing without it", zap.Error(err))
			key = ""
		case !claimed && existing != uuid.Nil:
			uc.log.WithContext(ctx).Info("replaying idempotent order", zap.String("order_id", existing.String()))
			return uc.GetOrder(ctx, existing)
		case !claimed:
			return nil, errors.NewConflict("a request with this idempotency key is still in progress", map[string]interface{}{
				"idempotency_key": input.IdempotencyKey,
			})
		}
	} else {
		key = ""
	}

	order, err := uc.placeOrder(ctx, input)
	if err != nil {
		if key != "" {
			if relErr := uc.idempotency.Release(ctx, key); relErr != nil {
				uc.log.WithContext(ctx).Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		return nil, err
	}

	if key != "" {
		if err := uc.idempotency.Complete(ctx, key, order.ID); err != nil {
			uc.log.WithContext(ctx).Warn("failed to record idempotency key", zap.Error(err))
		}
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishOrderCreated(ctx, order); err != nil {
			uc.log.WithContext(ctx).Error("failed to publish order created event",
				zap.Error(err),
				zap.String("order_id", order.ID.String()),
			)
		}
	}

	uc.log.WithContext(ctx).Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID.String()),
		zap.String("final_amount", order.FinalAmount().StringFixed(2)),
		zap.Int("items", order.ItemCount()),
	)

	return NewOrderSnapshot(order), nil
}

func (uc *OrderUseCase) placeOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	items := make([]domain.OrderItem, len(input.Items))
	lines := make([]domain.PriceLine, len(input.Items))
	reservations := make([]Reservation, len(input.Items))

	for i, in := range input.Items {
		item, err := domain.NewOrderItem(domain.OrderItemParams{
			BookID:         in.BookID,
			BookTitle:      in.BookTitle,
			BookAuthor:     in.BookAuthor,
			BookISBN:       in.BookISBN,
			BookImageURL:   in.BookImageURL,
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			DiscountAmount: in.DiscountAmount,
		})
		if err != nil {
			return nil, err
		}
		items[i] = item
		lines[i] = domain.PriceLine{
			BookID:    in.BookID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Discount:  in.DiscountAmount,
		}
		reservations[i] = Reservation{BookID: in.BookID, Quantity: in.Quantity}
	}

	quote, err := uc.calc.Quote(lines, input.Shipping.Country)
	if err != nil {
		return nil, err
	}

	now := uc.sm.Now()
	order, err := domain.NewOrder(domain.OrderParams{
		UserID:        input.UserID,
		OrderNumber:   uc.numbers.OrderNumber(now),
		Shipping:      input.Shipping,
		Customer:      input.Customer,
		PaymentMethod: input.PaymentMethod,
		Notes:         input.Notes,
		Items:         items,
		Quote:         quote,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	err = uc.uow.Do(ctx, func(ctx context.Context, store ports.Store) error {
		inventory := NewInventoryReservation(store.Catalog(), uc.log)
		books, err := inventory.ReserveAll(ctx, reservations)
		if err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].FillFromBook(books[i])
		}
		return store.Orders().Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder retrieves an order by ID
func (uc *OrderUseCase) GetOrder(ctx context.Context, id uuid.UUID) (*OrderSnapshot, error) {
	order, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewOrderSnapshot(order), nil
}

// GetOrderByNumber retrieves an order by its order number
func (uc *OrderUseCase) GetOrderByNumber(ctx context.Context, number string) (*OrderSnapshot, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.NewValidationError("order_number is required")
	}
	order, err := uc.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return NewOrderSnapshot(order), nil
}

// ListOrdersInput pages through a list; Page starts at 0
type ListOrdersInput struct {
	Page int
	Size int
}

func (in ListOrdersInput) normalize() (ListOrdersInput, ports.Page, error) {
	if in.Page < 0 {
		in.Page = 0
	}
	if in.Size <= 0 {
		in.Size = defaultPageSize
	}
	if in.Size > maxPageSize {
		in.Size = maxPageSize
	}
	if in.Page > maxOffset/in.Size {
		return in, ports.Page{}, errors.NewValidation("page is out of range", map[string]interface{}{
			"page":     in.Page,
			"max_page": maxOffset / in.Size,
		})
	}
	return in, ports.Page{Offset: in.Page * in.Size, Limit: in.Size}, nil
}

// ListOrdersOutput is one page of orders
type ListOrdersOutput struct {
	Orders     []*OrderSnapshot
	Page       int
	Size       int
	Total      int64
	TotalPages int
}

func newListOutput(orders []*domain.Order, total int64, in ListOrdersInput) *ListOrdersOutput {
	out := &ListOrdersOutput{
		Orders: make([]*OrderSnapshot, len(orders)),
		Page:   in.Page,
		Size:   in.Size,
		Total:  total,
	}
	for i, o := range orders {
		out.Orders[i] = NewOrderSnapshot(o)
	}
	out.TotalPages = int((total + int64(in.Size) - 1) / int64(in.Size))
	return out
}

// ListOrdersByUser returns a user's orders newest first
func (uc *OrderUseCase) ListOrdersByUser(ctx context.Context, userID uuid.UUID, input ListOrdersInput) (*ListOrdersOutput, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUserIDRequired
	}
	in, page, err := input.normalize()
	if err != nil {
		return nil, err
	}
	orders, total, err := uc.repo.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	return newListOutput(orders, total, in), nil
}

// ListOrdersByStatus returns orders in one status newest first
func (uc *OrderUseCase) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, input ListOrdersInput) (*ListOrdersOutput, error) {
	if _, err := domain.ParseOrderStatus(string(status)); err != nil {
		return nil, err
	}
	in, page, err := input.normalize()
	if err != nil {
		return nil, err
	}
	orders, total, err := uc.repo.ListByStatus(ctx, status, page)
	if err != nil {
		return nil, err
	}
	return newListOutput(orders, total, in), nil
}

// TransitionStatusInput represents a requested status change
type TransitionStatusInput struct {
	ID     uuid.UUID
	Status domain.OrderStatus
	Reason string
}

// TransitionStatus moves an order along the lifecycle. Entering CANCELLED
// from any allowed state releases the order's stock.
func (uc *OrderUseCase) TransitionStatus(ctx context.Context, input TransitionStatusInput) (*OrderSnapshot, error) {
	order, err := uc.mutate(ctx, input.ID, func(ctx context.Context, store ports.Store, order *domain.Order) (*domain.Transition, error) {
		t, err := uc.sm.Apply(order, input.Status, input.Reason)
		if err != nil {
			return nil, err
		}
		return &t, nil
	})
	if err != nil {
		return nil, err
	}
	return NewOrderSnapshot(order), nil
}

// CancelOrderInput represents an explicit cancellation
type CancelOrderInput struct {
	ID     uuid.UUID
	Reason string
}

// CancelOrder cancels a PENDING or CONFIRMED order and restores its stock
func (uc *OrderUseCase) CancelOrder(ctx context.Context, input CancelOrderInput) (*OrderSnapshot, error) {
	order, err := uc.mutate(ctx, input.ID, func(ctx context.Context, store ports.Store, order *domain.Order) (*domain.Transition, error) {
		t, err := uc.sm.Cancel(order, input.Reason)
		if err != nil {
			return nil, err
		}
		return &t, nil
	})
	if err != nil {
		return nil, err
	}
	return NewOrderSnapshot(order), nil
}

// UpdateTrackingInput carries carrier tracking details
type UpdateTrackingInput struct {
	ID                    uuid.UUID
	TrackingNumber        string
	EstimatedDeliveryDate *time.Time
}

// UpdateTracking overwrites tracking details on an order in any status
func (uc *OrderUseCase) UpdateTracking(ctx context.Context, input UpdateTrackingInput) (*OrderSnapshot, error) {
	order, err := uc.mutate(ctx, input.ID, func(ctx context.Context, store ports.Store, order *domain.Order) (*domain.Transition, error) {
		return nil, order.UpdateTracking(input.TrackingNumber, input.EstimatedDeliveryDate, uc.sm.Now())
	})
	if err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Info("tracking updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
		zap.String("tracking_number", order.TrackingNumber),
	)
	return NewOrderSnapshot(order), nil
}

// RecordPaymentInput is the outcome reported by the payment provider
type RecordPaymentInput struct {
	OrderID       uuid.UUID
	TransactionID string
	Succeeded     bool
	Reason        string
}

// RecordPayment stores a payment outcome. A settled payment confirms a
// pending order; a failed one cancels the order while it is still
// cancellable.
func (uc *OrderUseCase) RecordPayment(ctx context.Context, input RecordPaymentInput) (*OrderSnapshot, error) {
	order, err := uc.mutate(ctx, input.OrderID, func(ctx context.Context, store ports.Store, order *domain.Order) (*domain.Transition, error) {
		if input.Succeeded {
			order.PaymentStatus = domain.PaymentStatusCompleted
			if input.TransactionID != "" {
				order.PaymentTransactionID = input.TransactionID
			}
			order.Touch(uc.sm.Now())
			if order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusRefunded {
				uc.log.WithContext(ctx).Warn("payment settled for a closed order",
					zap.String("order_id", order.ID.String()),
					zap.String("status", string(order.Status)),
					zap.String("transaction_id", input.TransactionID),
				)
			}
			if order.Status != domain.OrderStatusPending {
				return nil, nil
			}
			t, err := uc.sm.Apply(order, domain.OrderStatusConfirmed, "")
			if err != nil {
				return nil, err
			}
			return &t, nil
		}

		order.PaymentStatus = domain.PaymentStatusFailed
		order.Touch(uc.sm.Now())
		if !order.CanBeCancelled() {
			uc.log.WithContext(ctx).Warn("payment failed for an order past cancellation",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(order.Status)),
			)
			return nil, nil
		}
		reason := "payment failed"
		if r := strings.TrimSpace(input.Reason); r != "" {
			reason += ": " + r
		}
		t, err := uc.sm.Cancel(order, domain.TruncateReason(reason))
		if err != nil {
			return nil, err
		}
		return &t, nil
	})
	if err != nil {
		return nil, err
	}
	return NewOrderSnapshot(order), nil
}

type mutation func(ctx context.Context, store ports.Store, order *domain.Order) (*domain.Transition, error)

// mutate loads the order under lock, applies fn, releases stock when the
// transition asks for it and saves the order, all in one transaction.
// Status events are published after commit.
func (uc *OrderUseCase) mutate(ctx context.Context, id uuid.UUID, fn mutation) (*domain.Order, error) {
	var (
		result  *domain.Order
		applied *domain.Transition
	)

	err := uc.uow.Do(ctx, func(ctx context.Context, store ports.Store) error {
		order, err := store.Orders().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		t, err := fn(ctx, store, order)
		if err != nil {
			return err
		}

		if t != nil && t.ReleaseStock {
			inventory := NewInventoryReservation(store.Catalog(), uc.log)
			if err := inventory.ReleaseAll(ctx, reservationsFor(order)); err != nil {
				return err
			}
		}

		if err := store.Orders().Update(ctx, order); err != nil {
			return err
		}

		result, applied = order, t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied != nil {
		uc.log.WithContext(ctx).Info("order status changed",
			zap.String("order_id", result.ID.String()),
			zap.String("order_number", result.OrderNumber),
			zap.String("from", string(applied.From)),
			zap.String("to", string(applied.To)),
			zap.Bool("stock_released", applied.ReleaseStock),
		)

		if uc.publisher != nil {
			if err := uc.publisher.PublishOrderStatusChanged(ctx, result, applied.From); err != nil {
				uc.log.WithContext(ctx).Error("failed to publish order status changed event",
					zap.Error(err),
					zap.String("order_id", result.ID.String()),
				)
			}
		}
	}

	return result, nil
}
