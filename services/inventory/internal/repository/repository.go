package repository

import (
	"context"
	"time"

	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

// StockRepository persists the stock ledger.
type StockRepository interface {
	// Create inserts a new ledger row. Returns ErrAlreadyExists if the
	// product already has one.
	Create(ctx context.Context, stock *domain.StockItem) (*domain.StockItem, error)

	// GetByProductID returns the ledger row for a product.
	GetByProductID(ctx context.Context, productID string) (*domain.StockItem, error)

	// ListLowStock returns items whose available quantity is at or below
	// their reorder level, plus the total count for pagination.
	ListLowStock(ctx context.Context, limit, offset int) ([]domain.StockItem, int, error)

	// Adjust applies a signed on-hand delta under a row lock and records the
	// audit row. The delta may never push available below zero.
	Adjust(ctx context.Context, productID string, delta int, adj *domain.StockAdjustment) (*domain.StockItem, error)
}

// ReservationRepository persists stock holds. Every mutation that moves a
// reservation also moves the matching ledger counters in the same
// transaction; the two must never diverge.
type ReservationRepository interface {
	// Reserve atomically takes holds for every item of an order. Either all
	// lines are reserved or none are.
	Reserve(ctx context.Context, orderID, customerID string, items []domain.ReservationRequest, expiresAt time.Time) ([]domain.Reservation, error)

	// GetByID returns a single reservation.
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// ListByOrderID returns all reservations belonging to an order.
	ListByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error)

	// Cancel releases a pending hold, restoring the reserved counter.
	// Returns ErrAlreadyTerminal when the reservation is not pending.
	Cancel(ctx context.Context, id string) (*domain.Reservation, error)

	// Confirm finalizes a pending hold: on-hand and reserved are both
	// reduced and an order audit row is written.
	Confirm(ctx context.Context, id string) (*domain.Reservation, error)

	// Expire is the sweeper's variant of Cancel: the hold is marked expired
	// and the reserved counter restored, in one transaction.
	Expire(ctx context.Context, id string) (*domain.Reservation, error)

	// ListExpired returns pending reservations whose TTL elapsed before now,
	// oldest first, bounded by limit. Safe to call again after partial
	// processing.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}
