package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeInvalidState      = "INVALID_STATE"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON response structure for errors
type ErrorResponse struct {
	Error   ErrorBody `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

// ErrorBody contains error details
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ToJSON converts an error to the standard JSON response
func ToJSON(err error, traceID string) (int, []byte) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = &AppError{
			Code:    CodeInternal,
			Message: "An internal error occurred",
		}
	}

	message := appErr.Message
	if appErr.Code == CodeInternal {
		// internal causes never leave the service
		message = "An internal error occurred"
	}

	response := ErrorResponse{
		Error: ErrorBody{
			Code:    appErr.Code,
			Message: message,
			Details: appErr.Details,
		},
		TraceID: traceID,
	}

	data, _ := json.Marshal(response)
	return HTTPStatus(appErr), data
}

// HTTPStatus returns the HTTP status code for an error
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case CodeValidation, CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInsufficientStock, CodeIllegalTransition, CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus converts an error to a gRPC status
func GRPCStatus(err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return status.Error(codes.Internal, "internal error")
	}

	var code codes.Code
	switch appErr.Code {
	case CodeValidation, CodeInvalidAmount:
		code = codes.InvalidArgument
	case CodeNotFound:
		code = codes.NotFound
	case CodeConflict:
		code = codes.AlreadyExists
	case CodeInsufficientStock, CodeIllegalTransition, CodeInvalidState:
		code = codes.FailedPrecondition
	default:
		return status.Error(codes.Internal, "internal error")
	}

	return status.Error(code, appErr.Message)
}

// Constructor functions

// NewValidation creates a validation error
func NewValidation(message string, details interface{}) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}

// NewNotFound creates a not found error
func NewNotFound(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with id '%v' not found", resource, id),
	}
}

// NewConflict creates a conflict error
func NewConflict(message string, details interface{}) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Details: details,
	}
}

// NewInsufficientStock creates an insufficient stock error
func NewInsufficientStock(message string, details interface{}) *AppError {
	return &AppError{
		Code:    CodeInsufficientStock,
		Message: message,
		Details: details,
	}
}

// NewInvalidAmount creates an invalid amount error
func NewInvalidAmount(message string, details interface{}) *AppError {
	return &AppError{
		Code:    CodeInvalidAmount,
		Message: message,
		Details: details,
	}
}

// NewIllegalTransition creates an illegal status transition error
func NewIllegalTransition(message string, details interface{}) *AppError {
	return &AppError{
		Code:    CodeIllegalTransition,
		Message: message,
		Details: details,
	}
}

// NewInvalidState creates an error for operations not permitted in the current state
func NewInvalidState(message string, details interface{}) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: message,
		Details: details,
	}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error matches a specific code
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As exposes the standard library errors.As so callers importing this
// package under its default name keep access to it
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message + ": " + appErr.Message,
			Details: appErr.Details,
			Err:     err,
		}
	}
	return NewInternal(message, err)
}
