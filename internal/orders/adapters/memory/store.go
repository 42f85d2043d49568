// Package memory keeps orders and the book catalog in process memory. It
// backs STORAGE_DRIVER=memory and the use-case tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bookvault/internal/orders/domain"
	"bookvault/internal/orders/ports"
)

type data struct {
	orders   map[uuid.UUID]*domain.Order
	byNumber map[string]uuid.UUID
	books    map[uuid.UUID]*domain.Book
}

func newData() *data {
	return &data{
		orders:   make(map[uuid.UUID]*domain.Order),
		byNumber: make(map[string]uuid.UUID),
		books:    make(map[uuid.UUID]*domain.Book),
	}
}

func (d *data) clone() *data {
	c := &data{
		orders:   make(map[uuid.UUID]*domain.Order, len(d.orders)),
		byNumber: make(map[string]uuid.UUID, len(d.byNumber)),
		books:    make(map[uuid.UUID]*domain.Book, len(d.books)),
	}
	for id, o := range d.orders {
		c.orders[id] = o.Clone()
	}
	for n, id := range d.byNumber {
		c.byNumber[n] = id
	}
	for id, b := range d.books {
		book := *b
		c.books[id] = &book
	}
	return c
}

// Store is an in-memory ports.UnitOfWork, ports.OrderRepository and
// ports.CatalogStore. Transactions run one at a time against a private
// copy that replaces the live data only when the transaction succeeds.
type Store struct {
	txMu    sync.Mutex
	mu      sync.RWMutex
	data    *data
	catalog ports.CatalogStore
}

// Option customizes a Store
type Option func(*Store)

// WithCatalog makes transactions use an external catalog instead of the
// built-in book table
func WithCatalog(catalog ports.CatalogStore) Option {
	return func(s *Store) {
		s.catalog = catalog
	}
}

// NewStore creates an empty Store
func NewStore(opts ...Option) *Store {
	s := &Store{data: newData()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn in a serialized transaction
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &view{d: work, catalog: s.catalog}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read() *view {
	return &view{d: s.data, catalog: s.catalog}
}

// AddBook seeds or replaces a catalog record
func (s *Store) AddBook(b domain.Book) {
	_ = s.Do(context.Background(), func(ctx context.Context, store ports.Store) error {
		v := store.(*view)
		book := b
		v.d.books[b.ID] = &book
		return nil
	})
}

// Book returns a copy of a catalog record
func (s *Store) Book(id uuid.UUID) (domain.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data.books[id]
	if !ok {
		return domain.Book{}, false
	}
	return *b, true
}

// Orders implements ports.Store for non-transactional callers
func (s *Store) Orders() ports.OrderRepository { return s }

// Catalog implements ports.Store for non-transactional callers
func (s *Store) Catalog() ports.CatalogStore {
	if s.catalog != nil {
		return s.catalog
	}
	return s
}

// Create stores a new order outside a transaction
func (s *Store) Create(ctx context.Context, order *domain.Order) error {
	return s.Do(ctx, func(ctx context.Context, store ports.Store) error {
		return store.Orders().Create(ctx, order)
	})
}

// GetByID retrieves an order by ID
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetByID(ctx, id)
}

// GetByIDForUpdate retrieves an order by ID; Do already serializes writers
func (s *Store) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.GetByID(ctx, id)
}

// GetByNumber retrieves an order by its order number
func (s *Store) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetByNumber(ctx, number)
}

// Update saves changes to an existing order
func (s *Store) Update(ctx context.Context, order *domain.Order) error {
	return s.Do(ctx, func(ctx context.Context, store ports.Store) error {
		return store.Orders().Update(ctx, order)
	})
}

// ListByUser returns a page of a user's orders, newest first
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, page ports.Page) ([]*domain.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListByUser(ctx, userID, page)
}

// ListByStatus returns a page of orders in one status, newest first
func (s *Store) ListByStatus(ctx context.Context, status domain.OrderStatus, page ports.Page) ([]*domain.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListByStatus(ctx, status, page)
}

// GetBook retrieves a catalog record
func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBook(ctx, id)
}

// DecrementStock takes n copies of a book out of stock
func (s *Store) DecrementStock(ctx context.Context, id uuid.UUID, n int) error {
	return s.Do(ctx, func(ctx context.Context, store ports.Store) error {
		return store.Catalog().DecrementStock(ctx, id, n)
	})
}

// IncrementStock puts n copies of a book back in stock
func (s *Store) IncrementStock(ctx context.Context, id uuid.UUID, n int) error {
	return s.Do(ctx, func(ctx context.Context, store ports.Store) error {
		return store.Catalog().IncrementStock(ctx, id, n)
	})
}

// view operates on one data set without locking; the Store decides which
// set and when
type view struct {
	d       *data
	catalog ports.CatalogStore
}

func (v *view) Orders() ports.OrderRepository { return v }

func (v *view) Catalog() ports.CatalogStore {
	if v.catalog != nil {
		return v.catalog
	}
	return v
}

func (v *view) Create(ctx context.Context, order *domain.Order) error {
	if _, taken := v.d.byNumber[order.OrderNumber]; taken {
		return domain.NewOrderNumberConflict(order.OrderNumber)
	}
	if _, taken := v.d.orders[order.ID]; taken {
		return domain.NewOrderNumberConflict(order.OrderNumber)
	}
	v.d.orders[order.ID] = order.Clone()
	v.d.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (v *view) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := v.d.orders[id]
	if !ok {
		return nil, domain.NewOrderNotFound(id)
	}
	return o.Clone(), nil
}

func (v *view) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return v.GetByID(ctx, id)
}

func (v *view) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	id, ok := v.d.byNumber[number]
	if !ok {
		return nil, domain.NewOrderNumberNotFound(number)
	}
	return v.GetByID(ctx, id)
}

func (v *view) Update(ctx context.Context, order *domain.Order) error {
	existing, ok := v.d.orders[order.ID]
	if !ok {
		return domain.NewOrderNotFound(order.ID)
	}
	updated := order.Clone()
	// items are written once at placement
	updated.Items = existing.Items
	v.d.orders[order.ID] = updated
	return nil
}

func (v *view) ListByUser(ctx context.Context, userID uuid.UUID, page ports.Page) ([]*domain.Order, int64, error) {
	orders, total := v.list(page, func(o *domain.Order) bool { return o.UserID == userID })
	return orders, total, nil
}

func (v *view) ListByStatus(ctx context.Context, status domain.OrderStatus, page ports.Page) ([]*domain.Order, int64, error) {
	orders, total := v.list(page, func(o *domain.Order) bool { return o.Status == status })
	return orders, total, nil
}

// list filters, sorts newest first and pages; the count is taken before paging
func (v *view) list(page ports.Page, match func(*domain.Order) bool) ([]*domain.Order, int64) {
	var matched []*domain.Order
	for _, o := range v.d.orders {
		if match(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].OrderNumber > matched[j].OrderNumber
	})

	total := int64(len(matched))
	if page.Offset < 0 || page.Offset >= len(matched) {
		return []*domain.Order{}, total
	}
	end := len(matched)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}

	out := make([]*domain.Order, 0, end-page.Offset)
	for _, o := range matched[page.Offset:end] {
		out = append(out, o.Clone())
	}
	return out, total
}

func (v *view) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, bool, error) {
	b, ok := v.d.books[id]
	if !ok {
		return nil, false, nil
	}
	book := *b
	return &book, true, nil
}

func (v *view) DecrementStock(ctx context.Context, id uuid.UUID, n int) error {
	b, ok := v.d.books[id]
	if !ok || !b.Active {
		return domain.NewBookNotFound(id)
	}
	if b.StockQuantity < n {
		return domain.NewInsufficientStock(id, b.Title, b.StockQuantity, n)
	}
	b.StockQuantity -= n
	return nil
}

func (v *view) IncrementStock(ctx context.Context, id uuid.UUID, n int) error {
	b, ok := v.d.books[id]
	if !ok {
		return domain.NewBookNotFound(id)
	}
	b.StockQuantity += n
	return nil
}
