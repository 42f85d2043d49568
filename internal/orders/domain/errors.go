package domain

import (
	"fmt"

	"github.com/google/uuid"

	"bookvault/pkg/errors"
)

// Domain-specific errors
var (
	ErrEmptyOrder     = errors.NewValidation("order must contain at least one item", nil)
	ErrUserIDRequired = errors.NewValidation("user_id is required", nil)
)

// NewValidationError creates a validation error for a malformed request
func NewValidationError(message string) error {
	return errors.NewValidation(message, nil)
}

// NewFieldTooLong reports a field exceeding its column size
func NewFieldTooLong(field string, max int) error {
	return errors.NewValidation(fmt.Sprintf("%s must not exceed %d characters", field, max), map[string]interface{}{
		"field": field,
		"max":   max,
	})
}

// NewUnknownEnum reports a value outside a closed set
func NewUnknownEnum(field, value string) error {
	return errors.NewValidation(fmt.Sprintf("unknown %s '%s'", field, value), map[string]interface{}{
		"field": field,
		"value": value,
	})
}

// NewInvalidAmount reports a non-positive price, quantity or bad discount
func NewInvalidAmount(message string, details map[string]interface{}) error {
	if details == nil {
		return errors.NewInvalidAmount(message, nil)
	}
	return errors.NewInvalidAmount(message, details)
}

// NewOrderNotFound creates a not found error with the order ID
func NewOrderNotFound(id uuid.UUID) error {
	return errors.NewNotFound("order", id)
}

// NewOrderNumberNotFound creates a not found error for a lookup by number
func NewOrderNumberNotFound(number string) error {
	return errors.NewNotFound("order", number)
}

// NewBookNotFound is returned when a book is unknown or inactive
func NewBookNotFound(id uuid.UUID) error {
	return errors.NewNotFound("book", id)
}

// NewInsufficientStock reports a reservation larger than the stock on hand
func NewInsufficientStock(bookID uuid.UUID, title string, available, requested int) error {
	return errors.NewInsufficientStock(
		fmt.Sprintf("insufficient stock for book '%s': available %d, requested %d", title, available, requested),
		map[string]interface{}{
			"book_id":   bookID.String(),
			"available": available,
			"requested": requested,
		},
	)
}

// NewIllegalTransition carries both sides of the rejected status change
func NewIllegalTransition(current, requested OrderStatus) error {
	return errors.NewIllegalTransition(
		fmt.Sprintf("cannot transition order from %s to %s", current, requested),
		map[string]interface{}{
			"current":   string(current),
			"requested": string(requested),
		},
	)
}

// NewNotCancellable is returned when cancelling outside PENDING/CONFIRMED
func NewNotCancellable(orderNumber string, current OrderStatus) error {
	return errors.NewInvalidState(
		fmt.Sprintf("order %s cannot be cancelled in status %s", orderNumber, current),
		map[string]interface{}{
			"order_number": orderNumber,
			"current":      string(current),
		},
	)
}

// NewOrderNumberConflict reports a collision on the unique order number
func NewOrderNumberConflict(number string) error {
	return errors.NewConflict("order number already exists, retry the request", map[string]interface{}{
		"order_number": number,
	})
}
