package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across services. Domain code wraps these so callers
// can classify failures with errors.Is without importing service internals.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverRelease       = errors.New("release exceeds reserved quantity")
	ErrAlreadyTerminal   = errors.New("already in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrGatewayError      = errors.New("payment gateway error")
	ErrConflict          = errors.New("conflict")
	ErrServiceUnavail    = errors.New("service unavailable")
	ErrInternal          = errors.New("internal error")
)

// AppError is a structured application error carrying a stable machine code
// and an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidQuantity creates a 400 error for a non-positive or malformed quantity.
func InvalidQuantity(message string) *AppError {
	return &AppError{
		Code:    "INVALID_QUANTITY",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidQuantity,
	}
}

// InsufficientStock creates a 409 error for a reservation or deduction that
// asks for more than is available.
func InsufficientStock(productID string, requested, available int) *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("product %s: requested %d, available %d", productID, requested, available),
		Status:  http.StatusConflict,
		Err:     ErrInsufficientStock,
	}
}

// OverRelease creates a 409 error for a release larger than the reserved amount.
func OverRelease(productID string, requested, reserved int) *AppError {
	return &AppError{
		Code:    "OVER_RELEASE",
		Message: fmt.Sprintf("product %s: releasing %d but only %d reserved", productID, requested, reserved),
		Status:  http.StatusConflict,
		Err:     ErrOverRelease,
	}
}

// AlreadyTerminal creates a 409 error for an operation on an entity that has
// already reached a terminal state.
func AlreadyTerminal(resource, id, state string) *AppError {
	return &AppError{
		Code:    "ALREADY_TERMINAL",
		Message: fmt.Sprintf("%s %s is already %s", resource, id, state),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyTerminal,
	}
}

// InvalidTransition creates a 409 error for a disallowed status move.
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		Status:  http.StatusConflict,
		Err:     ErrInvalidTransition,
	}
}

// PaymentDeclined creates a 422 error for a charge the provider rejected.
func PaymentDeclined(message string) *AppError {
	return &AppError{
		Code:    "PAYMENT_DECLINED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrPaymentDeclined,
	}
}

// GatewayError creates a 502 error for a payment gateway that could not be
// reached or returned an unusable response.
func GatewayError(message string) *AppError {
	return &AppError{
		Code:    "GATEWAY_ERROR",
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     ErrGatewayError,
	}
}

// Conflict creates a generic 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// ServiceUnavailable creates a 503 error for an unreachable downstream.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrOverRelease),
		errors.Is(err, ErrAlreadyTerminal),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentDeclined):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrGatewayError):
		return http.StatusBadGateway
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
