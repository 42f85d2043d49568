package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bookvault/internal/orders/domain"
	apperrors "bookvault/pkg/errors"
)

// BookModel maps the catalog rows the order engine reserves against.
// The catalog service owns the table; only stock_quantity is written here.
type BookModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Title         string          `gorm:"size:255;not null"`
	Author        string          `gorm:"size:255"`
	ISBN          string          `gorm:"column:isbn;size:20;index"`
	CoverImageURL string          `gorm:"column:cover_image_url;size:500"`
	Price         decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	StockQuantity int             `gorm:"not null;default:0;check:chk_books_stock_non_negative,stock_quantity >= 0"`
	IsActive      bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (BookModel) TableName() string {
	return "books"
}

// PostgresCatalogStore implements CatalogStore with guarded single-statement
// updates so concurrent reservations never drive stock negative
type PostgresCatalogStore struct {
	db *gorm.DB
}

// NewPostgresCatalogStore creates a catalog store over db or a transaction
func NewPostgresCatalogStore(db *gorm.DB) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

// GetBook returns the book and whether it exists
func (s *PostgresCatalogStore) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, bool, error) {
	var model BookModel

	result := s.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, apperrors.NewInternal("failed to get book", result.Error)
	}

	return bookToDomain(&model), true, nil
}

// DecrementStock removes n units in one guarded UPDATE. When no row
// matches, the book is re-read to tell a missing book from a short one.
func (s *PostgresCatalogStore) DecrementStock(ctx context.Context, id uuid.UUID, n int) error {
	result := decrementStatement(s.db.WithContext(ctx), id, n)
	if result.Error != nil {
		return apperrors.NewInternal("failed to decrement stock", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	book, found, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	if !found || !book.Active {
		return domain.NewBookNotFound(id)
	}
	return domain.NewInsufficientStock(id, book.Title, book.StockQuantity, n)
}

// IncrementStock adds n units back
func (s *PostgresCatalogStore) IncrementStock(ctx context.Context, id uuid.UUID, n int) error {
	result := incrementStatement(s.db.WithContext(ctx), id, n)
	if result.Error != nil {
		return apperrors.NewInternal("failed to increment stock", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewBookNotFound(id)
	}
	return nil
}

func decrementStatement(db *gorm.DB, id uuid.UUID, n int) *gorm.DB {
	return db.Model(&BookModel{}).
		Where("id = ? AND is_active = ? AND stock_quantity >= ?", id, true, n).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity - ?", n),
			"updated_at":     time.Now().UTC(),
		})
}

func incrementStatement(db *gorm.DB, id uuid.UUID, n int) *gorm.DB {
	return db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity + ?", n),
			"updated_at":     time.Now().UTC(),
		})
}

func bookToDomain(model *BookModel) *domain.Book {
	return &domain.Book{
		ID:            model.ID,
		Title:         model.Title,
		Author:        model.Author,
		ISBN:          model.ISBN,
		CoverImageURL: model.CoverImageURL,
		Price:         model.Price,
		StockQuantity: model.StockQuantity,
		Active:        model.IsActive,
	}
}
