// Package memory holds an in-process implementation of the inventory
// repositories. It backs unit tests and local development without Postgres;
// a single mutex stands in for row locks, so the same all-or-nothing
// guarantees hold.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

// Store keeps the stock ledger, reservations, and the adjustment audit
// trail in maps. It implements both repository interfaces.
type Store struct {
	mu           sync.Mutex
	stock        map[string]*domain.StockItem   // keyed by product ID
	reservations map[string]*domain.Reservation // keyed by reservation ID
	adjustments  []domain.StockAdjustment
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		stock:        make(map[string]*domain.StockItem),
		reservations: make(map[string]*domain.Reservation),
	}
}

func (s *Store) Create(_ context.Context, stock *domain.StockItem) (*domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stock[stock.ProductID]; ok {
		return nil, apperrors.AlreadyExists("stock", "product_id", stock.ProductID)
	}
	cp := *stock
	s.stock[stock.ProductID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) GetByProductID(_ context.Context, productID string) (*domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock, ok := s.stock[productID]
	if !ok {
		return nil, apperrors.NotFound("stock", productID)
	}
	cp := *stock
	return &cp, nil
}

func (s *Store) ListLowStock(_ context.Context, limit, offset int) ([]domain.StockItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	low := []domain.StockItem{}
	for _, stock := range s.stock {
		if stock.ShouldReorder() {
			low = append(low, *stock)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		ai, aj := low[i].Available(), low[j].Available()
		if ai != aj {
			return ai < aj
		}
		return low[i].ProductID < low[j].ProductID
	})

	total := len(low)
	if offset >= total {
		return []domain.StockItem{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return low[offset:end], total, nil
}

func (s *Store) Adjust(_ context.Context, productID string, delta int, adj *domain.StockAdjustment) (*domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock, ok := s.stock[productID]
	if !ok {
		return nil, apperrors.NotFound("stock", productID)
	}
	if stock.OnHand+delta < stock.Reserved {
		return nil, apperrors.InsufficientStock(productID, -delta, stock.Available())
	}

	stock.OnHand += delta
	stock.UpdatedAt = time.Now().UTC()
	s.recordAdjustment(productID, delta, adj.Reason, adj.Actor, adj.ReferenceID)

	cp := *stock
	return &cp, nil
}

func (s *Store) recordAdjustment(productID string, delta int, reason, actor, referenceID string) {
	s.adjustments = append(s.adjustments, domain.StockAdjustment{
		ID:          uuid.New().String(),
		ProductID:   productID,
		Delta:       delta,
		Reason:      reason,
		Actor:       actor,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	})
}

// Adjustments returns a copy of the audit trail, oldest first.
func (s *Store) Adjustments() []domain.StockAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StockAdjustment, len(s.adjustments))
	copy(out, s.adjustments)
	return out
}

func (s *Store) Reserve(_ context.Context, orderID, customerID string, items []domain.ReservationRequest, expiresAt time.Time) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A retried reserve for an order that already holds stock returns the
	// existing holds instead of doubling the reserved counters.
	existing := []domain.Reservation{}
	for _, res := range s.reservations {
		if res.OrderID == orderID && res.Status == domain.ReservationStatusPending {
			existing = append(existing, *res)
		}
	}
	if len(existing) > 0 {
		sort.Slice(existing, func(i, j int) bool { return existing[i].CreatedAt.Before(existing[j].CreatedAt) })
		return existing, nil
	}

	// Validate every line before touching counters so a late failure cannot
	// leave a partial hold behind.
	for _, item := range items {
		stock, ok := s.stock[item.ProductID]
		if !ok {
			return nil, apperrors.NotFound("stock", item.ProductID)
		}
		if err := stock.CanReserve(item.Quantity); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	reservations := make([]domain.Reservation, 0, len(items))
	for _, item := range items {
		stock := s.stock[item.ProductID]
		stock.Reserved += item.Quantity
		stock.UpdatedAt = now

		res := domain.Reservation{
			ID:         uuid.New().String(),
			OrderID:    orderID,
			ProductID:  item.ProductID,
			CustomerID: customerID,
			Quantity:   item.Quantity,
			Status:     domain.ReservationStatusPending,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		cp := res
		s.reservations[res.ID] = &cp
		reservations = append(reservations, res)
	}
	return reservations, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return nil, apperrors.NotFound("reservation", id)
	}
	cp := *res
	return &cp, nil
}

func (s *Store) ListByOrderID(_ context.Context, orderID string) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Reservation{}
	for _, res := range s.reservations {
		if res.OrderID == orderID {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Cancel(_ context.Context, id string) (*domain.Reservation, error) {
	return s.settle(id, domain.ReservationStatusCancelled)
}

func (s *Store) Expire(_ context.Context, id string) (*domain.Reservation, error) {
	return s.settle(id, domain.ReservationStatusExpired)
}

func (s *Store) settle(id string, to domain.ReservationStatus) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return nil, apperrors.NotFound("reservation", id)
	}
	if res.IsTerminal() {
		return nil, apperrors.AlreadyTerminal("reservation", id, string(res.Status))
	}

	if stock, ok := s.stock[res.ProductID]; ok {
		stock.Reserved -= res.Quantity
		stock.UpdatedAt = time.Now().UTC()
	}
	res.Status = to
	res.UpdatedAt = time.Now().UTC()

	cp := *res
	return &cp, nil
}

func (s *Store) Confirm(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return nil, apperrors.NotFound("reservation", id)
	}
	if res.IsTerminal() {
		return nil, apperrors.AlreadyTerminal("reservation", id, string(res.Status))
	}

	if stock, ok := s.stock[res.ProductID]; ok {
		stock.OnHand -= res.Quantity
		stock.Reserved -= res.Quantity
		stock.UpdatedAt = time.Now().UTC()
	}
	s.recordAdjustment(res.ProductID, -res.Quantity, domain.AdjustmentReasonOrder, "", res.OrderID)

	res.Status = domain.ReservationStatusConfirmed
	res.UpdatedAt = time.Now().UTC()

	cp := *res
	return &cp, nil
}

func (s *Store) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Reservation{}
	for _, res := range s.reservations {
		if res.IsExpired(now) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
