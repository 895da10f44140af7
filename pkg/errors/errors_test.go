package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	e := NotFound("order", "abc-123")
	assert.Contains(t, e.Error(), "NOT_FOUND")
	assert.Contains(t, e.Error(), "abc-123")

	plain := &AppError{Code: "X", Message: "boom"}
	assert.Equal(t, "X: boom", plain.Error())
}

func TestSentinelUnwrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NotFound("stock", "p1"), ErrNotFound},
		{"insufficient stock", InsufficientStock("p1", 5, 3), ErrInsufficientStock},
		{"over release", OverRelease("p1", 10, 4), ErrOverRelease},
		{"already terminal", AlreadyTerminal("reservation", "r1", "expired"), ErrAlreadyTerminal},
		{"invalid transition", InvalidTransition("shipped", "confirmed"), ErrInvalidTransition},
		{"invalid quantity", InvalidQuantity("quantity must be positive"), ErrInvalidQuantity},
		{"payment declined", PaymentDeclined("card declined"), ErrPaymentDeclined},
		{"gateway", GatewayError("upstream timeout"), ErrGatewayError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)

			// Wrapping must preserve classification.
			wrapped := fmt.Errorf("service: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error carries its own status", NotFound("order", "x"), http.StatusNotFound},
		{"wrapped app error", fmt.Errorf("outer: %w", InsufficientStock("p", 2, 1)), http.StatusConflict},
		{"bare sentinel not found", ErrNotFound, http.StatusNotFound},
		{"bare sentinel invalid quantity", ErrInvalidQuantity, http.StatusBadRequest},
		{"bare sentinel over release", ErrOverRelease, http.StatusConflict},
		{"bare sentinel already terminal", ErrAlreadyTerminal, http.StatusConflict},
		{"bare sentinel declined", ErrPaymentDeclined, http.StatusUnprocessableEntity},
		{"bare sentinel gateway", ErrGatewayError, http.StatusBadGateway},
		{"bare sentinel unavailable", ErrServiceUnavail, http.StatusServiceUnavailable},
		{"unknown error", stderrors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	inner := InvalidQuantity("quantity must be positive")
	err := Wrap(inner, "reserve stock")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve stock")

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_QUANTITY", appErr.Code)
}
