package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/order/internal/client"
	"github.com/utafrali/FulfillmentGo/services/order/internal/domain"
	"github.com/utafrali/FulfillmentGo/services/order/internal/repository"
)

// Actor constants recorded in the status history.
const (
	ActorCustomer = "customer"
	ActorSystem   = "system"
)

// InventoryClient is the inventory capability the saga depends on.
type InventoryClient interface {
	CheckAvailability(ctx context.Context, productID string) (int, error)
	Reserve(ctx context.Context, orderID, customerID string, items []client.ReserveItem) error
	ConfirmOrder(ctx context.Context, orderID string) error
	ReleaseOrder(ctx context.Context, orderID string) error
}

// PaymentClient is the payment capability the saga depends on.
type PaymentClient interface {
	AuthorizeAndCapture(ctx context.Context, orderID string, amount int64, currency, method string) (string, error)
	Refund(ctx context.Context, transactionID string, amount int64) error
}

// CartClient is the cart capability the saga depends on.
type CartClient interface {
	Clear(ctx context.Context, userID string) error
}

// EventPublisher publishes order domain events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error
	PublishOrderConfirmed(ctx context.Context, order *domain.Order) error
	PublishOrderPaymentFailed(ctx context.Context, orderID, reason string) error
	PublishOrderCancelled(ctx context.Context, orderID, customerID, reason string) error
	PublishPaymentSucceeded(ctx context.Context, orderID, transactionID string, amount int64, currency string) error
	PublishPaymentFailed(ctx context.Context, orderID, reason string) error
	PublishPaymentRefunded(ctx context.Context, orderID, transactionID string, amount int64, currency string) error
}

// OrderService coordinates the order placement saga and the order lifecycle.
type OrderService struct {
	repo      repository.OrderRepository
	inventory InventoryClient
	payment   PaymentClient
	cart      CartClient
	publisher EventPublisher
	logger    *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	repo repository.OrderRepository,
	inventory InventoryClient,
	payment PaymentClient,
	cart CartClient,
	publisher EventPublisher,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		repo:      repo,
		inventory: inventory,
		payment:   payment,
		cart:      cart,
		publisher: publisher,
		logger:    logger,
	}
}

// PlaceOrderItemInput holds one line of an order placement request.
type PlaceOrderItemInput struct {
	ProductID string
	SKU       string
	Name      string
	UnitPrice int64
	Quantity  int
}

// PlaceOrderInput holds the parameters for placing an order. OrderID is the
// caller-supplied idempotency key: a retry with the same ID returns the
// stored outcome, except that an order stranded in pending by an interrupted
// first attempt has its saga resumed.
type PlaceOrderInput struct {
	OrderID       string
	UserID        string
	Currency      string
	PaymentMethod string
	Items         []PlaceOrderItemInput
}

// PlaceOrder runs the placement saga: reserve stock, capture payment, settle
// or compensate. It returns the order in its final state; a declined or
// failed payment yields a payment_failed order, not an error, so the caller
// can distinguish "the order could not be created" from "the order exists
// and its payment failed".
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	if err := validatePlaceOrder(&input); err != nil {
		return nil, err
	}

	// Cheap availability pre-check before writing anything. The reservation
	// re-checks under a row lock, so this is advisory only.
	for _, item := range input.Items {
		available, err := s.inventory.CheckAvailability(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("check availability for %s: %w", item.ProductID, err)
		}
		if available < item.Quantity {
			return nil, apperrors.InsufficientStock(item.ProductID, item.Quantity, available)
		}
	}

	order := buildOrder(input)

	if err := s.repo.Create(ctx, order); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			prior, getErr := s.repo.GetByID(ctx, order.ID)
			if getErr != nil {
				return nil, fmt.Errorf("load prior order %s: %w", order.ID, getErr)
			}
			if prior.Status == domain.OrderStatusPending {
				// The first attempt died between creating the order and
				// reserving stock; a pending order holds nothing, so no TTL
				// will ever move it. Run the saga against the stored order.
				// Reserve is idempotent on the order ID, so a half-finished
				// first attempt cannot double the holds.
				s.logger.InfoContext(ctx, "resuming interrupted order placement",
					slog.String("order_id", prior.ID),
				)
				return s.runPlacement(ctx, prior)
			}
			// Every other substate has live holds or a terminal outcome, so
			// return the stored result without re-running any side effect.
			s.logger.InfoContext(ctx, "order placement replayed",
				slog.String("order_id", prior.ID),
				slog.String("status", prior.Status),
			)
			return prior, nil
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	return s.runPlacement(ctx, order)
}

// runPlacement drives a pending order through the saga: reserve stock,
// capture payment, settle or compensate.
func (s *OrderService) runPlacement(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	// Step 1: reserve stock, all-or-nothing. On failure no reservation
	// exists, so the only cleanup is marking the order cancelled.
	reserveItems := make([]client.ReserveItem, len(order.Items))
	for i, item := range order.Items {
		reserveItems[i] = client.ReserveItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := s.inventory.Reserve(ctx, order.ID, order.UserID, reserveItems); err != nil {
		s.failPlacement(ctx, order, domain.OrderStatusCancelled, "stock reservation failed: "+err.Error())
		return nil, err
	}

	// Step 2: move to payment_pending and announce the order.
	if err := s.transition(ctx, order, repository.StatusUpdate{
		Status:           domain.OrderStatusPaymentPending,
		Actor:            ActorSystem,
		ExpectedStatuses: []string{domain.OrderStatusPending},
	}); err != nil {
		return nil, err
	}
	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		s.logEventFailure(ctx, "order.created", order.ID, err)
	}

	// Step 3: charge. The payment client bounds its own timeout, so a slow
	// gateway fails the saga long before the reservation TTL lapses.
	txID, err := s.payment.AuthorizeAndCapture(ctx, order.ID, order.TotalAmount, order.Currency, order.PaymentMethod)
	if err != nil {
		return s.compensatePayment(ctx, order, err)
	}

	return s.settle(ctx, order, txID)
}

// settle finalizes a captured order: deduct stock, mark confirmed, announce.
func (s *OrderService) settle(ctx context.Context, order *domain.Order, txID string) (*domain.Order, error) {
	// Settle holds directly; if the call fails, the order.confirmed event
	// consumer on the inventory side settles them instead.
	if err := s.inventory.ConfirmOrder(ctx, order.ID); err != nil {
		s.logger.WarnContext(ctx, "direct reservation confirm failed, deferring to event consumer",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	err := s.transition(ctx, order, repository.StatusUpdate{
		Status:           domain.OrderStatusConfirmed,
		Actor:            ActorSystem,
		PaymentTxID:      txID,
		ExpectedStatuses: []string{domain.OrderStatusPaymentPending},
	})
	if err != nil {
		// The order moved concurrently, most likely failed by the expiry
		// consumer while the charge was in flight. The money is captured, so
		// give it back before surfacing the conflict.
		if refundErr := s.payment.Refund(ctx, txID, order.TotalAmount); refundErr != nil {
			s.logger.ErrorContext(ctx, "refund after lost confirm race failed, manual intervention required",
				slog.String("order_id", order.ID),
				slog.String("transaction_id", txID),
				slog.String("error", refundErr.Error()),
			)
		}
		return nil, err
	}
	order.PaymentTxID = txID

	if err := s.publisher.PublishOrderConfirmed(ctx, order); err != nil {
		s.logEventFailure(ctx, "order.confirmed", order.ID, err)
	}
	if err := s.publisher.PublishPaymentSucceeded(ctx, order.ID, txID, order.TotalAmount, order.Currency); err != nil {
		s.logEventFailure(ctx, "payment.successful", order.ID, err)
	}

	// Best-effort cart cleanup: a stale cart never blocks a placed order.
	if err := s.cart.Clear(ctx, order.UserID); err != nil {
		s.logger.WarnContext(ctx, "cart clear failed",
			slog.String("user_id", order.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order confirmed",
		slog.String("order_id", order.ID),
		slog.String("transaction_id", txID),
		slog.Int64("total_amount", order.TotalAmount),
	)
	return order, nil
}

// compensatePayment rolls back a failed charge: release the holds, mark the
// order payment_failed, announce both failures.
func (s *OrderService) compensatePayment(ctx context.Context, order *domain.Order, payErr error) (*domain.Order, error) {
	// Release the holds. If this call fails the expiry sweeper reclaims
	// them when the TTL lapses, so the error is logged, not fatal.
	if err := s.inventory.ReleaseOrder(ctx, order.ID); err != nil {
		s.logger.WarnContext(ctx, "reservation release failed, expiry sweeper will reclaim",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	reason := payErr.Error()
	if err := s.transition(ctx, order, repository.StatusUpdate{
		Status:           domain.OrderStatusPaymentFailed,
		Actor:            ActorSystem,
		Reason:           reason,
		ExpectedStatuses: []string{domain.OrderStatusPaymentPending},
	}); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the race against the expiry consumer. If the order already
			// sits in payment_failed the outcome is the one we wanted, and
			// the consumer published the failure events, so stop here.
			current, getErr := s.repo.GetByID(ctx, order.ID)
			if getErr == nil && current.Status == domain.OrderStatusPaymentFailed {
				return current, nil
			}
		}
		return nil, err
	}
	order.FailureReason = reason

	if err := s.publisher.PublishOrderPaymentFailed(ctx, order.ID, reason); err != nil {
		s.logEventFailure(ctx, "order.payment_failed", order.ID, err)
	}
	if err := s.publisher.PublishPaymentFailed(ctx, order.ID, reason); err != nil {
		s.logEventFailure(ctx, "payment.failed", order.ID, err)
	}

	s.logger.InfoContext(ctx, "order payment failed",
		slog.String("order_id", order.ID),
		slog.String("reason", reason),
	)
	return order, nil
}

// failPlacement marks an order that never got its reservations. No events
// fire: nothing external happened, so there is nothing to compensate.
func (s *OrderService) failPlacement(ctx context.Context, order *domain.Order, status, reason string) {
	err := s.repo.UpdateStatus(ctx, order.ID, repository.StatusUpdate{
		Status:           status,
		Actor:            ActorSystem,
		Reason:           reason,
		ExpectedStatuses: []string{domain.OrderStatusPending},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark aborted order",
			slog.String("order_id", order.ID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		return
	}
	order.Status = status
	order.FailureReason = reason
}

// transition persists a status change and mirrors it on the in-memory order.
func (s *OrderService) transition(ctx context.Context, order *domain.Order, upd repository.StatusUpdate) error {
	if err := s.repo.UpdateStatus(ctx, order.ID, upd); err != nil {
		return fmt.Errorf("transition order %s to %s: %w", order.ID, upd.Status, err)
	}
	order.Status = upd.Status
	if upd.Reason != "" {
		order.FailureReason = upd.Reason
	}
	return nil
}

// GetOrder retrieves an order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// ListOrders returns a filtered, paginated list of orders.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves the order forward through fulfillment
// (confirmed, processing, shipped, delivered). Cancellation and refunds go
// through CancelOrder.
func (s *OrderService) UpdateStatus(ctx context.Context, id, newStatus, actor, reason string) (*domain.Order, error) {
	if !domain.IsValidStatus(newStatus) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q, must be one of: %s",
			newStatus, strings.Join(domain.ValidStatuses(), ", ")))
	}
	if newStatus == domain.OrderStatusCancelled || newStatus == domain.OrderStatusRefunded {
		return nil, apperrors.InvalidInput("cancellation goes through the cancel operation")
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for status update: %w", err)
	}

	if !order.CanTransitionTo(newStatus) {
		return nil, apperrors.InvalidTransition(order.Status, newStatus)
	}

	oldStatus := order.Status
	if err := s.transition(ctx, order, repository.StatusUpdate{
		Status:           newStatus,
		Actor:            actor,
		Reason:           reason,
		ExpectedStatuses: []string{oldStatus},
	}); err != nil {
		return nil, err
	}

	if err := s.publisher.PublishOrderStatusChanged(ctx, id, oldStatus, newStatus); err != nil {
		s.logEventFailure(ctx, "order.status_changed", id, err)
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("old_status", oldStatus),
		slog.String("new_status", newStatus),
	)
	return order, nil
}

// CancelOrder cancels an order that has not shipped. Before capture the
// order simply moves to cancelled; after capture the payment is refunded
// first and the order moves to refunded. Either way an order.cancelled event
// tells the inventory service to release any remaining holds.
func (s *OrderService) CancelOrder(ctx context.Context, id, actor, reason string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order for cancel: %w", err)
	}

	if order.IsTerminal() {
		return nil, apperrors.AlreadyTerminal("order", id, order.Status)
	}
	if !order.Cancellable() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cannot cancel order in %q status", order.Status))
	}

	target := domain.OrderStatusCancelled
	if order.Captured() {
		if err := s.payment.Refund(ctx, order.PaymentTxID, order.TotalAmount); err != nil {
			return nil, fmt.Errorf("refund order %s: %w", id, err)
		}
		target = domain.OrderStatusRefunded
	}

	oldStatus := order.Status
	if err := s.transition(ctx, order, repository.StatusUpdate{
		Status:           target,
		Actor:            actor,
		Reason:           reason,
		ExpectedStatuses: []string{oldStatus},
	}); err != nil {
		return nil, err
	}

	if err := s.publisher.PublishOrderCancelled(ctx, id, order.UserID, reason); err != nil {
		s.logEventFailure(ctx, "order.cancelled", id, err)
	}
	if target == domain.OrderStatusRefunded {
		if err := s.publisher.PublishPaymentRefunded(ctx, id, order.PaymentTxID, order.TotalAmount, order.Currency); err != nil {
			s.logEventFailure(ctx, "payment.refunded", id, err)
		}
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", id),
		slog.String("status", target),
		slog.String("reason", reason),
	)
	return order, nil
}

// FailForExpiredReservation moves an order still waiting on payment to
// payment_failed. Orders that progressed past payment are left untouched; a
// concurrent transition is treated the same way.
func (s *OrderService) FailForExpiredReservation(ctx context.Context, orderID, reason string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order for expiry: %w", err)
	}

	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusPaymentPending:
	default:
		s.logger.DebugContext(ctx, "ignoring reservation expiry for settled order",
			slog.String("order_id", orderID),
			slog.String("status", order.Status),
		)
		return nil
	}

	err = s.repo.UpdateStatus(ctx, orderID, repository.StatusUpdate{
		Status:           domain.OrderStatusPaymentFailed,
		Actor:            ActorSystem,
		Reason:           reason,
		ExpectedStatuses: []string{domain.OrderStatusPending, domain.OrderStatusPaymentPending},
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the race against the saga; the order settled first.
			return nil
		}
		return fmt.Errorf("fail order %s: %w", orderID, err)
	}

	if err := s.publisher.PublishOrderPaymentFailed(ctx, orderID, reason); err != nil {
		s.logEventFailure(ctx, "order.payment_failed", orderID, err)
	}

	s.logger.InfoContext(ctx, "order failed on reservation expiry",
		slog.String("order_id", orderID),
	)
	return nil
}

func (s *OrderService) logEventFailure(ctx context.Context, topic, orderID string, err error) {
	// Event publishing never rolls back a committed transition.
	s.logger.ErrorContext(ctx, "failed to publish event",
		slog.String("topic", topic),
		slog.String("order_id", orderID),
		slog.String("error", err.Error()),
	)
}

func validatePlaceOrder(input *PlaceOrderInput) error {
	if input.UserID == "" {
		return apperrors.InvalidInput("user_id is required")
	}
	if len(input.Items) == 0 {
		return apperrors.InvalidInput("order must contain at least one item")
	}
	if len(input.Currency) != 3 {
		return apperrors.InvalidInput("currency must be a 3-letter ISO code")
	}
	for _, item := range input.Items {
		if item.ProductID == "" {
			return apperrors.InvalidInput("product_id is required on every item")
		}
		if item.Quantity <= 0 {
			return apperrors.InvalidQuantity(fmt.Sprintf("product %s: quantity must be positive, got %d", item.ProductID, item.Quantity))
		}
		if item.UnitPrice < 0 {
			return apperrors.InvalidInput(fmt.Sprintf("product %s: unit price cannot be negative", item.ProductID))
		}
	}
	if input.OrderID == "" {
		input.OrderID = uuid.New().String()
	} else if _, err := uuid.Parse(input.OrderID); err != nil {
		return apperrors.InvalidInput("order_id must be a valid UUID")
	}
	return nil
}

func buildOrder(input PlaceOrderInput) *domain.Order {
	now := time.Now().UTC()

	var subtotal int64
	items := make([]domain.OrderItem, len(input.Items))
	for i, itemInput := range input.Items {
		items[i] = domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   input.OrderID,
			ProductID: itemInput.ProductID,
			SKU:       itemInput.SKU,
			Name:      itemInput.Name,
			UnitPrice: itemInput.UnitPrice,
			Quantity:  itemInput.Quantity,
		}
		subtotal += items[i].LineTotal()
	}

	return &domain.Order{
		ID:             input.OrderID,
		UserID:         input.UserID,
		Status:         domain.OrderStatusPending,
		Items:          items,
		SubtotalAmount: subtotal,
		TotalAmount:    subtotal,
		Currency:       strings.ToUpper(input.Currency),
		PaymentMethod:  input.PaymentMethod,
		StatusHistory: []domain.StatusChange{
			{
				ID:        uuid.New().String(),
				OrderID:   input.OrderID,
				Status:    domain.OrderStatusPending,
				Actor:     ActorCustomer,
				CreatedAt: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
