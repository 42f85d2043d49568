package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookvault/internal/orders/domain"
	"bookvault/internal/orders/ports"
	pkgdb "bookvault/pkg/db"
	apperrors "bookvault/pkg/errors"
)

// OrderModel is the GORM model for orders (persistence layer)
type OrderModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderNumber string    `gorm:"size:50;uniqueIndex;not null"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null"`
	Status      string    `gorm:"size:20;index;not null;default:'PENDING'"`

	TotalAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	ShippingCost   decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	FinalAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null"`

	ShippingAddress    string `gorm:"size:200;not null"`
	ShippingCity       string `gorm:"size:100;not null"`
	ShippingState      string `gorm:"size:100"`
	ShippingPostalCode string `gorm:"size:20"`
	ShippingCountry    string `gorm:"size:100;not null"`

	CustomerName  string `gorm:"size:100;not null"`
	CustomerEmail string `gorm:"size:100;not null"`
	CustomerPhone string `gorm:"size:20"`
	Notes         string `gorm:"size:1000"`

	PaymentMethod        string `gorm:"size:30;not null"`
	PaymentStatus        string `gorm:"size:30;not null;default:'PENDING'"`
	PaymentTransactionID string `gorm:"size:100"`

	TrackingNumber        string `gorm:"size:100"`
	EstimatedDeliveryDate *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
	CancellationReason    string `gorm:"size:500"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is the GORM model for order lines
type OrderItemModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Position int       `gorm:"not null"`

	BookID       uuid.UUID `gorm:"type:uuid;index;not null"`
	BookTitle    string    `gorm:"size:255"`
	BookAuthor   string    `gorm:"size:255"`
	BookISBN     string    `gorm:"column:book_isbn;size:20"`
	BookImageURL string    `gorm:"column:book_image_url;size:500"`

	Quantity       int             `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	TotalPrice     decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	FinalPrice     decimal.Decimal `gorm:"type:numeric(10,2);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *gorm.DB
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
// Pass a transaction handle to scope every call to that transaction.
func NewPostgresOrderRepository(db *gorm.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// Migrate runs auto-migration for the order and catalog models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&BookModel{}, &OrderModel{}, &OrderItemModel{})
}

// Create persists an order together with its items
func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toModel(order)

	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) || pkgdb.IsUniqueViolation(result.Error) {
			return domain.NewOrderNumberConflict(order.OrderNumber)
		}
		return apperrors.NewInternal("failed to create order", result.Error)
	}

	return nil
}

// GetByID retrieves an order by ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id, domain.NewOrderNotFound(id))
}

// GetByIDForUpdate retrieves an order under SELECT ... FOR UPDATE
func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(query, "id = ?", id, domain.NewOrderNotFound(id))
}

// GetByNumber retrieves an order by its order number
func (r *PostgresOrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.first(r.db.WithContext(ctx), "order_number = ?", number, domain.NewOrderNumberNotFound(number))
}

func (r *PostgresOrderRepository) first(query *gorm.DB, cond string, arg interface{}, notFound error) (*domain.Order, error) {
	var model OrderModel

	result := query.Preload("Items", orderedItems).Where(cond, arg).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, notFound
		}
		return nil, apperrors.NewInternal("failed to get order", result.Error)
	}

	return toDomain(&model), nil
}

// Update saves the order header. Items are written once on Create.
func (r *PostgresOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	model := toModel(order)

	result := r.db.WithContext(ctx).
		Model(&OrderModel{ID: order.ID}).
		Select("*").
		Omit("id", "order_number", "user_id", "created_at", clause.Associations).
		Updates(model)
	if result.Error != nil {
		return apperrors.NewInternal("failed to update order", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewOrderNotFound(order.ID)
	}

	return nil
}

// ListByUser returns a user's orders newest first
func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page ports.Page) ([]*domain.Order, int64, error) {
	return r.list(ctx, "user_id = ?", userID, page)
}

// ListByStatus returns orders in a status newest first
func (r *PostgresOrderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, page ports.Page) ([]*domain.Order, int64, error) {
	return r.list(ctx, "status = ?", string(status), page)
}

func (r *PostgresOrderRepository) list(ctx context.Context, cond string, arg interface{}, page ports.Page) ([]*domain.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where(cond, arg).Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewInternal("failed to count orders", err)
	}

	var models []OrderModel
	result := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where(cond, arg).
		Order("created_at DESC, order_number DESC").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&models)
	if result.Error != nil {
		return nil, 0, apperrors.NewInternal("failed to list orders", result.Error)
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = toDomain(&models[i])
	}

	return orders, total, nil
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// toModel converts a domain entity to a GORM model
func toModel(order *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:                    order.ID,
		OrderNumber:           order.OrderNumber,
		UserID:                order.UserID,
		Status:                string(order.Status),
		TotalAmount:           order.TotalAmount,
		ShippingCost:          order.ShippingCost,
		TaxAmount:             order.TaxAmount,
		DiscountAmount:        order.DiscountAmount,
		FinalAmount:           order.FinalAmount(),
		ShippingAddress:       order.Shipping.Address,
		ShippingCity:          order.Shipping.City,
		ShippingState:         order.Shipping.State,
		ShippingPostalCode:    order.Shipping.PostalCode,
		ShippingCountry:       order.Shipping.Country,
		CustomerName:          order.Customer.Name,
		CustomerEmail:         order.Customer.Email,
		CustomerPhone:         order.Customer.Phone,
		Notes:                 order.Notes,
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		PaymentTransactionID:  order.PaymentTransactionID,
		TrackingNumber:        order.TrackingNumber,
		EstimatedDeliveryDate: order.EstimatedDeliveryDate,
		DeliveredAt:           order.DeliveredAt,
		CancelledAt:           order.CancelledAt,
		CancellationReason:    order.CancellationReason,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
		Items:                 make([]OrderItemModel, len(order.Items)),
	}
	for i, item := range order.Items {
		model.Items[i] = OrderItemModel{
			ID:             item.ID,
			OrderID:        order.ID,
			Position:       i,
			BookID:         item.BookID,
			BookTitle:      item.BookTitle,
			BookAuthor:     item.BookAuthor,
			BookISBN:       item.BookISBN,
			BookImageURL:   item.BookImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			TotalPrice:     item.TotalPrice(),
			FinalPrice:     item.FinalPrice(),
			CreatedAt:      item.CreatedAt,
			UpdatedAt:      item.UpdatedAt,
		}
	}
	return model
}

// toDomain converts a GORM model to a domain entity
func toDomain(model *OrderModel) *domain.Order {
	order := &domain.Order{
		Metadata: domain.Metadata{
			ID:        model.ID,
			CreatedAt: model.CreatedAt,
			UpdatedAt: model.UpdatedAt,
		},
		UserID:         model.UserID,
		OrderNumber:    model.OrderNumber,
		Status:         domain.OrderStatus(model.Status),
		TotalAmount:    model.TotalAmount,
		ShippingCost:   model.ShippingCost,
		TaxAmount:      model.TaxAmount,
		DiscountAmount: model.DiscountAmount,
		Shipping: domain.ShippingAddress{
			Address:    model.ShippingAddress,
			City:       model.ShippingCity,
			State:      model.ShippingState,
			PostalCode: model.ShippingPostalCode,
			Country:    model.ShippingCountry,
		},
		Customer: domain.Customer{
			Name:  model.CustomerName,
			Email: model.CustomerEmail,
			Phone: model.CustomerPhone,
		},
		Notes:                 model.Notes,
		PaymentMethod:         domain.PaymentMethod(model.PaymentMethod),
		PaymentStatus:         domain.PaymentStatus(model.PaymentStatus),
		PaymentTransactionID:  model.PaymentTransactionID,
		TrackingNumber:        model.TrackingNumber,
		EstimatedDeliveryDate: model.EstimatedDeliveryDate,
		DeliveredAt:           model.DeliveredAt,
		CancelledAt:           model.CancelledAt,
		CancellationReason:    model.CancellationReason,
		Items:                 make([]domain.OrderItem, len(model.Items)),
	}
	for i, item := range model.Items {
		order.Items[i] = domain.OrderItem{
			Metadata: domain.Metadata{
				ID:        item.ID,
				CreatedAt: item.CreatedAt,
				UpdatedAt: item.UpdatedAt,
			},
			BookID:         item.BookID,
			BookTitle:      item.BookTitle,
			BookAuthor:     item.BookAuthor,
			BookISBN:       item.BookISBN,
			BookImageURL:   item.BookImageURL,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
		}
	}
	return order
}
