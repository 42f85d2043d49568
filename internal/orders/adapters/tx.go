package adapters

import (
	"context"

	"gorm.io/gorm"

	"bookvault/internal/orders/ports"
	pkgdb "bookvault/pkg/db"
	apperrors "bookvault/pkg/errors"
)

// GormUnitOfWork runs use case steps in one database transaction and
// retries the whole step on serialization failures
type GormUnitOfWork struct {
	db      *gorm.DB
	opts    pkgdb.TxOptions
	catalog func(tx *gorm.DB) ports.CatalogStore
}

// UnitOfWorkOption configures a GormUnitOfWork
type UnitOfWorkOption func(*GormUnitOfWork)

// WithoutStockTracking swaps the postgres catalog for NoopCatalogStore
func WithoutStockTracking() UnitOfWorkOption {
	return func(u *GormUnitOfWork) {
		u.catalog = func(*gorm.DB) ports.CatalogStore { return NewNoopCatalogStore() }
	}
}

// NewGormUnitOfWork creates a unit of work over db
func NewGormUnitOfWork(db *gorm.DB, opts pkgdb.TxOptions, options ...UnitOfWorkOption) *GormUnitOfWork {
	u := &GormUnitOfWork{
		db:   db,
		opts: opts,
		catalog: func(tx *gorm.DB) ports.CatalogStore {
			return NewPostgresCatalogStore(tx)
		},
	}
	for _, opt := range options {
		opt(u)
	}
	return u
}

// Do runs fn with repositories bound to a fresh transaction
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	err := pkgdb.Transaction(ctx, u.db, u.opts, func(tx *gorm.DB) error {
		return fn(ctx, &gormStore{
			orders:  NewPostgresOrderRepository(tx),
			catalog: u.catalog(tx),
		})
	})
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		return err
	}
	return apperrors.NewInternal("transaction failed", err)
}

type gormStore struct {
	orders  ports.OrderRepository
	catalog ports.CatalogStore
}

func (s *gormStore) Orders() ports.OrderRepository { return s.orders }

func (s *gormStore) Catalog() ports.CatalogStore { return s.catalog }
