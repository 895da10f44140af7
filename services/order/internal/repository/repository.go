package repository

import (
	"context"

	"github.com/utafrali/FulfillmentGo/services/order/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// StatusUpdate describes one status transition to persist. A history row is
// appended alongside the orders row in the same transaction.
type StatusUpdate struct {
	Status string
	Actor  string
	Reason string

	// PaymentTxID, when non-empty, is recorded on the order.
	PaymentTxID string

	// ExpectedStatuses, when non-empty, guards the update: it only applies
	// while the order is still in one of these statuses. A guard miss
	// returns a conflict so saga steps never clobber a concurrent
	// transition.
	ExpectedStatuses []string
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts an order with its item snapshot and any seeded status
	// history atomically. A duplicate order ID returns an already-exists
	// error so callers can replay idempotently.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID, including items and status history.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the filter along with the total count.
	// Status history is only loaded by GetByID.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus applies a status transition and appends a history row.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
}
