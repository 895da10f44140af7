package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/repository"
)

// EventPublisher publishes inventory domain events. Publish failures never
// roll back committed state; callers log and move on.
type EventPublisher interface {
	PublishStockCreated(ctx context.Context, stock *domain.StockItem) error
	PublishStockUpdated(ctx context.Context, stock *domain.StockItem) error
	PublishStockAdjusted(ctx context.Context, stock *domain.StockItem, delta int, reason string) error
	PublishLowStock(ctx context.Context, stock *domain.StockItem) error
	PublishStockReserved(ctx context.Context, reservation *domain.Reservation) error
	PublishReservationReleased(ctx context.Context, reservation *domain.Reservation) error
	PublishReservationExpired(ctx context.Context, reservation *domain.Reservation) error
}

// InventoryService implements the business logic for the stock ledger and
// reservation lifecycle.
type InventoryService struct {
	stockRepo       repository.StockRepository
	reservationRepo repository.ReservationRepository
	publisher       EventPublisher
	logger          *slog.Logger
	reservationTTL  time.Duration
	sweepBatchSize  int
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(
	stockRepo repository.StockRepository,
	reservationRepo repository.ReservationRepository,
	publisher EventPublisher,
	logger *slog.Logger,
	reservationTTL time.Duration,
	sweepBatchSize int,
) *InventoryService {
	if sweepBatchSize <= 0 {
		sweepBatchSize = 100
	}
	return &InventoryService{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
		publisher:       publisher,
		logger:          logger,
		reservationTTL:  reservationTTL,
		sweepBatchSize:  sweepBatchSize,
	}
}

// CreateStock seeds the ledger for a product.
func (s *InventoryService) CreateStock(ctx context.Context, stock *domain.StockItem) (*domain.StockItem, error) {
	if stock.ProductID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}
	if stock.OnHand < 0 {
		return nil, apperrors.InvalidInput("on_hand must be non-negative")
	}
	if stock.ReorderLevel < 0 {
		return nil, apperrors.InvalidInput("reorder_level must be non-negative")
	}

	stock.ID = uuid.New().String()
	stock.Reserved = 0
	stock.UpdatedAt = time.Now().UTC()

	result, err := s.stockRepo.Create(ctx, stock)
	if err != nil {
		return nil, fmt.Errorf("create stock: %w", err)
	}

	if err := s.publisher.PublishStockCreated(ctx, result); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.created event",
			slog.String("product_id", result.ProductID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "stock created",
		slog.String("product_id", result.ProductID),
		slog.String("sku", result.SKU),
		slog.Int("on_hand", result.OnHand),
	)

	return result, nil
}

// GetStock returns the ledger row for a product.
func (s *InventoryService) GetStock(ctx context.Context, productID string) (*domain.StockItem, error) {
	stock, err := s.stockRepo.GetByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// Reserve places time-bounded holds for every line of an order. All lines
// succeed or none do. A non-positive TTL falls back to the configured
// default.
func (s *InventoryService) Reserve(ctx context.Context, orderID, customerID string, items []domain.ReservationRequest, ttl time.Duration) ([]domain.Reservation, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order_id is required")
	}
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("items list cannot be empty")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, apperrors.InvalidQuantity(fmt.Sprintf("quantity for product %s must be positive", item.ProductID))
		}
	}
	if ttl <= 0 {
		ttl = s.reservationTTL
	}

	expiresAt := time.Now().UTC().Add(ttl)
	reservations, err := s.reservationRepo.Reserve(ctx, orderID, customerID, items, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	for i := range reservations {
		if err := s.publisher.PublishStockReserved(ctx, &reservations[i]); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.reserved event",
				slog.String("reservation_id", reservations[i].ID),
				slog.String("error", err.Error()),
			)
		}
		s.notifyIfLow(ctx, reservations[i].ProductID)
	}

	s.logger.InfoContext(ctx, "stock reserved",
		slog.String("order_id", orderID),
		slog.Int("line_count", len(reservations)),
	)

	return reservations, nil
}

// GetReservation returns a single reservation.
func (s *InventoryService) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return reservation, nil
}

// ListReservationsByOrder returns all reservations for an order.
func (s *InventoryService) ListReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	reservations, err := s.reservationRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return reservations, nil
}

// Release cancels a single pending hold and restores availability.
func (s *InventoryService) Release(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	reservation, err := s.reservationRepo.Cancel(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("release reservation: %w", err)
	}

	if err := s.publisher.PublishReservationReleased(ctx, reservation); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.reservation_released event",
			slog.String("reservation_id", reservation.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation released",
		slog.String("reservation_id", reservation.ID),
		slog.String("order_id", reservation.OrderID),
	)

	return reservation, nil
}

// ConfirmByOrder finalizes every pending hold of an order, deducting stock.
// Holds already settled by a concurrent caller are skipped, so retrying a
// confirm is safe.
func (s *InventoryService) ConfirmByOrder(ctx context.Context, orderID string) error {
	reservations, err := s.reservationRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list reservations for confirm: %w", err)
	}
	if len(reservations) == 0 {
		return apperrors.NotFound("reservations for order", orderID)
	}

	confirmed := 0
	for i := range reservations {
		if reservations[i].IsTerminal() {
			continue
		}
		res, err := s.reservationRepo.Confirm(ctx, reservations[i].ID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAlreadyTerminal) {
				continue
			}
			return fmt.Errorf("confirm reservation %s: %w", reservations[i].ID, err)
		}
		confirmed++
		s.publishUpdated(ctx, res.ProductID)
		s.notifyIfLow(ctx, res.ProductID)
	}

	s.logger.InfoContext(ctx, "order reservations confirmed",
		slog.String("order_id", orderID),
		slog.Int("confirmed_count", confirmed),
	)

	return nil
}

// ReleaseByOrder cancels every pending hold of an order. Used when payment
// fails or the order is cancelled.
func (s *InventoryService) ReleaseByOrder(ctx context.Context, orderID string) error {
	reservations, err := s.reservationRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list reservations for release: %w", err)
	}

	released := 0
	for i := range reservations {
		if reservations[i].IsTerminal() {
			continue
		}
		res, err := s.reservationRepo.Cancel(ctx, reservations[i].ID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAlreadyTerminal) {
				continue
			}
			return fmt.Errorf("release reservation %s: %w", reservations[i].ID, err)
		}
		released++
		if err := s.publisher.PublishReservationReleased(ctx, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.reservation_released event",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order reservations released",
		slog.String("order_id", orderID),
		slog.Int("released_count", released),
	)

	return nil
}

// AddStock increases on-hand quantity, e.g. after receiving a shipment.
func (s *InventoryService) AddStock(ctx context.Context, productID string, quantity int, actor string) (*domain.StockItem, error) {
	if quantity <= 0 {
		return nil, apperrors.InvalidQuantity("quantity must be positive")
	}
	return s.AdjustStock(ctx, productID, quantity, domain.AdjustmentReasonRestock, actor)
}

// AdjustStock applies a signed on-hand delta with an audited reason.
func (s *InventoryService) AdjustStock(ctx context.Context, productID string, delta int, reason, actor string) (*domain.StockItem, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}
	if delta == 0 {
		return nil, apperrors.InvalidInput("delta must be non-zero")
	}
	if !domain.IsValidAdjustmentReason(reason) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid adjustment reason %q", reason))
	}

	adj := &domain.StockAdjustment{Reason: reason, Actor: actor}
	stock, err := s.stockRepo.Adjust(ctx, productID, delta, adj)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	if err := s.publisher.PublishStockAdjusted(ctx, stock, delta, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.adjusted event",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
	if stock.ShouldReorder() {
		if err := s.publisher.PublishLowStock(ctx, stock); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.low_stock event",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "stock adjusted",
		slog.String("product_id", productID),
		slog.Int("delta", delta),
		slog.String("reason", reason),
		slog.Int("on_hand", stock.OnHand),
		slog.Int("available", stock.Available()),
	)

	return stock, nil
}

// ListLowStock returns items at or below their reorder level.
func (s *InventoryService) ListLowStock(ctx context.Context, limit, offset int) ([]domain.StockItem, int, error) {
	items, total, err := s.stockRepo.ListLowStock(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	return items, total, nil
}

// SweepExpired settles pending holds whose TTL elapsed, restoring their
// stock and notifying the order service. One stuck reservation is logged and
// skipped so it cannot stall the rest of the batch; the next sweep retries
// it. Returns the number of holds expired.
func (s *InventoryService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.reservationRepo.ListExpired(ctx, time.Now().UTC(), s.sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	swept := 0
	for i := range expired {
		res, err := s.reservationRepo.Expire(ctx, expired[i].ID)
		if err != nil {
			// A concurrent confirm or cancel won the race; that settles the
			// hold, so there is nothing left to do here.
			if errors.Is(err, apperrors.ErrAlreadyTerminal) {
				continue
			}
			s.logger.ErrorContext(ctx, "failed to expire reservation",
				slog.String("reservation_id", expired[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		swept++

		if err := s.publisher.PublishReservationExpired(ctx, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish reservation.expired event",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.publisher.PublishReservationReleased(ctx, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.reservation_released event",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if swept > 0 {
		s.logger.InfoContext(ctx, "swept expired reservations",
			slog.Int("swept_count", swept),
			slog.Int("candidate_count", len(expired)),
		)
	}

	return swept, nil
}

func (s *InventoryService) publishUpdated(ctx context.Context, productID string) {
	stock, err := s.stockRepo.GetByProductID(ctx, productID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load stock after update",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.publisher.PublishStockUpdated(ctx, stock); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.updated event",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *InventoryService) notifyIfLow(ctx context.Context, productID string) {
	stock, err := s.stockRepo.GetByProductID(ctx, productID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load stock for reorder check",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !stock.ShouldReorder() {
		return
	}
	if err := s.publisher.PublishLowStock(ctx, stock); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.low_stock event",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}
