package ports

import (
	"context"

	"github.com/google/uuid"

	"bookvault/internal/orders/domain"
)

// Page selects a window of a list query
type Page struct {
	Offset int
	Limit  int
}

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// Create persists a new order with its items; a duplicate order number
	// fails with a Conflict error
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// GetByIDForUpdate retrieves an order and locks it until the
	// surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// GetByNumber retrieves an order by its order number
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)

	// Update saves the order header; items are immutable after placement
	Update(ctx context.Context, order *domain.Order) error

	// ListByUser returns a user's orders newest first and the total count
	ListByUser(ctx context.Context, userID uuid.UUID, page Page) ([]*domain.Order, int64, error)

	// ListByStatus returns orders in a status newest first and the total count
	ListByStatus(ctx context.Context, status domain.OrderStatus, page Page) ([]*domain.Order, int64, error)
}

// CatalogStore is the book catalog as seen by inventory reservation
type CatalogStore interface {
	// GetBook returns the book and whether it exists
	GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, bool, error)

	// DecrementStock atomically removes n units if the book is active and
	// has at least n in stock
	DecrementStock(ctx context.Context, id uuid.UUID, n int) error

	// IncrementStock atomically adds n units back
	IncrementStock(ctx context.Context, id uuid.UUID, n int) error
}

// Store groups the transactional repositories
type Store interface {
	Orders() OrderRepository
	Catalog() CatalogStore
}

// UnitOfWork runs fn inside one transaction. Everything fn does through
// the Store it receives commits together or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// PublishOrderCreated publishes an order created event
	PublishOrderCreated(ctx context.Context, order *domain.Order) error

	// PublishOrderStatusChanged publishes a status transition
	PublishOrderStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
}

// IdempotencyStore deduplicates order submissions by client key
type IdempotencyStore interface {
	// Claim reserves key for a new submission. When the key already maps to
	// an order its ID is returned with claimed=false.
	Claim(ctx context.Context, key string) (existing uuid.UUID, claimed bool, err error)

	// Complete binds a claimed key to the order it produced
	Complete(ctx context.Context, key string, orderID uuid.UUID) error

	// Release frees a claimed key after a failed submission
	Release(ctx context.Context, key string) error
}
