package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookvault/internal/orders/domain"
	"bookvault/internal/orders/ports"
	"bookvault/pkg/errors"
	"bookvault/pkg/logger"
)

// Reservation is a quantity of one book held for an order
type Reservation struct {
	BookID   uuid.UUID
	Quantity int
}

// InventoryReservation is the only component that changes stock
type InventoryReservation struct {
	catalog ports.CatalogStore
	log     *logger.Logger
}

// NewInventoryReservation creates a reservation component over a catalog
func NewInventoryReservation(catalog ports.CatalogStore, log *logger.Logger) *InventoryReservation {
	return &InventoryReservation{catalog: catalog, log: log}
}

// Reserve takes quantity units of a book. The returned book reflects the
// catalog record before the decrement.
func (r *InventoryReservation) Reserve(ctx context.Context, bookID uuid.UUID, quantity int) (*domain.Book, error) {
	if quantity < 1 {
		return nil, domain.NewInvalidAmount("quantity must be at least 1", map[string]interface{}{
			"book_id":  bookID.String(),
			"quantity": quantity,
		})
	}

	book, found, err := r.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load book")
	}
	if !found || !book.Active {
		return nil, domain.NewBookNotFound(bookID)
	}
	if book.StockQuantity < quantity {
		return nil, domain.NewInsufficientStock(bookID, book.Title, book.StockQuantity, quantity)
	}

	// the guarded decrement re-checks stock; the read above only shapes the error
	if err := r.catalog.DecrementStock(ctx, bookID, quantity); err != nil {
		return nil, err
	}

	return book, nil
}

// Release returns quantity units of a book taken by an earlier Reserve
func (r *InventoryReservation) Release(ctx context.Context, bookID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return nil
	}
	return r.catalog.IncrementStock(ctx, bookID, quantity)
}

// ReserveAll reserves items in submission order. If one fails, every
// reservation already taken in this call is released before the error is
// returned.
func (r *InventoryReservation) ReserveAll(ctx context.Context, items []Reservation) ([]*domain.Book, error) {
	books := make([]*domain.Book, 0, len(items))
	for i, item := range items {
		book, err := r.Reserve(ctx, item.BookID, item.Quantity)
		if err != nil {
			r.compensate(ctx, items[:i])
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

func (r *InventoryReservation) compensate(ctx context.Context, taken []Reservation) {
	for i := len(taken) - 1; i >= 0; i-- {
		item := taken[i]
		if err := r.Release(ctx, item.BookID, item.Quantity); err != nil {
			r.log.WithContext(ctx).Error("failed to release reservation",
				zap.Error(err),
				zap.String("book_id", item.BookID.String()),
				zap.Int("quantity", item.Quantity),
			)
		}
	}
}

// ReleaseAll returns the stock held by an order. Books that have left the
// catalog are skipped.
func (r *InventoryReservation) ReleaseAll(ctx context.Context, items []Reservation) error {
	for _, item := range items {
		err := r.Release(ctx, item.BookID, item.Quantity)
		if errors.Is(err, errors.CodeNotFound) {
			r.log.WithContext(ctx).Warn("book not found while restoring stock",
				zap.String("book_id", item.BookID.String()),
				zap.Int("quantity", item.Quantity),
			)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// reservationsFor lists the quantities an order holds
func reservationsFor(order *domain.Order) []Reservation {
	out := make([]Reservation, len(order.Items))
	for i, item := range order.Items {
		out[i] = Reservation{BookID: item.BookID, Quantity: item.Quantity}
	}
	return out
}
