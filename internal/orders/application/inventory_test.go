package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookvault/internal/orders/domain"
	"bookvault/pkg/errors"
	"bookvault/pkg/logger"
)

// MockCatalogStore keeps stock in a map and records every call
type MockCatalogStore struct {
	books        map[uuid.UUID]*domain.Book
	calls        []string
	incrementErr error
}

func NewMockCatalogStore(books ...domain.Book) *MockCatalogStore {
	m := &MockCatalogStore{books: make(map[uuid.UUID]*domain.Book)}
	for _, b := range books {
		b := b
		m.books[b.ID] = &b
	}
	return m
}

func (m *MockCatalogStore) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, bool, error) {
	b, ok := m.books[id]
	if !ok {
		return nil, false, nil
	}
	c := *b
	return &c, true, nil
}

func (m *MockCatalogStore) DecrementStock(ctx context.Context, id uuid.UUID, n int) error {
	m.calls = append(m.calls, fmt.Sprintf("dec %s %d", m.books[id].Title, n))
	b := m.books[id]
	if b.StockQuantity < n {
		return domain.NewInsufficientStock(id, b.Title, b.StockQuantity, n)
	}
	b.StockQuantity -= n
	return nil
}

func (m *MockCatalogStore) IncrementStock(ctx context.Context, id uuid.UUID, n int) error {
	if m.incrementErr != nil {
		return m.incrementErr
	}
	b, ok := m.books[id]
	if !ok {
		return domain.NewBookNotFound(id)
	}
	m.calls = append(m.calls, fmt.Sprintf("inc %s %d", b.Title, n))
	b.StockQuantity += n
	return nil
}

func TestInventoryReservation_Reserve(t *testing.T) {
	book := domain.Book{ID: uuid.New(), Title: "Dune", StockQuantity: 3, Active: true}
	catalog := NewMockCatalogStore(book)
	inv := NewInventoryReservation(catalog, logger.NewNop())
	ctx := context.Background()

	got, err := inv.Reserve(ctx, book.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 1, catalog.books[book.ID].StockQuantity)

	_, err = inv.Reserve(ctx, book.ID, 2)
	assert.True(t, errors.Is(err, errors.CodeInsufficientStock))

	_, err = inv.Reserve(ctx, book.ID, 0)
	assert.True(t, errors.Is(err, errors.CodeInvalidAmount))

	_, err = inv.Reserve(ctx, uuid.New(), 1)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestInventoryReservation_ReserveInactiveIsNotFound(t *testing.T) {
	book := domain.Book{ID: uuid.New(), Title: "Gone", StockQuantity: 3, Active: false}
	inv := NewInventoryReservation(NewMockCatalogStore(book), logger.NewNop())

	_, err := inv.Reserve(context.Background(), book.ID, 1)

	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestInventoryReservation_ReserveAllCompensatesInReverse(t *testing.T) {
	a := domain.Book{ID: uuid.New(), Title: "A", StockQuantity: 5, Active: true}
	b := domain.Book{ID: uuid.New(), Title: "B", StockQuantity: 5, Active: true}
	c := domain.Book{ID: uuid.New(), Title: "C", StockQuantity: 1, Active: true}
	catalog := NewMockCatalogStore(a, b, c)
	inv := NewInventoryReservation(catalog, logger.NewNop())

	_, err := inv.ReserveAll(context.Background(), []Reservation{
		{BookID: a.ID, Quantity: 1},
		{BookID: b.ID, Quantity: 2},
		{BookID: c.ID, Quantity: 3},
	})

	assert.True(t, errors.Is(err, errors.CodeInsufficientStock))
	assert.Equal(t, []string{"dec A 1", "dec B 2", "inc B 2", "inc A 1"}, catalog.calls)
	assert.Equal(t, 5, catalog.books[a.ID].StockQuantity)
	assert.Equal(t, 5, catalog.books[b.ID].StockQuantity)
	assert.Equal(t, 1, catalog.books[c.ID].StockQuantity)
}

func TestInventoryReservation_ReserveAllReturnsOriginalErrorWhenCompensationFails(t *testing.T) {
	a := domain.Book{ID: uuid.New(), Title: "A", StockQuantity: 5, Active: true}
	catalog := NewMockCatalogStore(a)
	catalog.incrementErr = fmt.Errorf("connection reset")
	inv := NewInventoryReservation(catalog, logger.NewNop())

	_, err := inv.ReserveAll(context.Background(), []Reservation{
		{BookID: a.ID, Quantity: 1},
		{BookID: uuid.New(), Quantity: 1},
	})

	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestInventoryReservation_ReleaseAllSkipsMissingBooks(t *testing.T) {
	a := domain.Book{ID: uuid.New(), Title: "A", StockQuantity: 0, Active: true}
	catalog := NewMockCatalogStore(a)
	inv := NewInventoryReservation(catalog, logger.NewNop())

	err := inv.ReleaseAll(context.Background(), []Reservation{
		{BookID: uuid.New(), Quantity: 4},
		{BookID: a.ID, Quantity: 2},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, catalog.books[a.ID].StockQuantity)
}

func TestInventoryReservation_ReleaseAllPropagatesOtherErrors(t *testing.T) {
	a := domain.Book{ID: uuid.New(), Title: "A", Active: true}
	catalog := NewMockCatalogStore(a)
	catalog.incrementErr = fmt.Errorf("connection reset")
	inv := NewInventoryReservation(catalog, logger.NewNop())

	err := inv.ReleaseAll(context.Background(), []Reservation{{BookID: a.ID, Quantity: 1}})

	assert.Error(t, err)
}
