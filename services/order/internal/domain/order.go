package domain

import "time"

// Order status constants.
const (
	OrderStatusPending        = "pending"
	OrderStatusPaymentPending = "payment_pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPaymentFailed  = "payment_failed"
	OrderStatusProcessing     = "processing"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
)

// Order represents a customer order. Items are an immutable snapshot taken at
// placement time; later catalog changes never alter an existing order.
type Order struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Status         string         `json:"status"`
	Items          []OrderItem    `json:"items"`
	SubtotalAmount int64          `json:"subtotal_amount"`
	TotalAmount    int64          `json:"total_amount"`
	Currency       string         `json:"currency"`
	PaymentMethod  string         `json:"payment_method,omitempty"`
	PaymentTxID    string         `json:"payment_tx_id,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	StatusHistory  []StatusChange `json:"status_history,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StatusChange is an append-only audit record of one status transition.
type StatusChange struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPaymentPending,
		OrderStatusConfirmed,
		OrderStatusPaymentFailed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedTransitions defines which status transitions are valid. Moves are
// forward-only; cancellation maps to cancelled before payment capture and to
// refunded after it.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:        {OrderStatusPaymentPending, OrderStatusPaymentFailed, OrderStatusCancelled},
		OrderStatusPaymentPending: {OrderStatusConfirmed, OrderStatusPaymentFailed, OrderStatusCancelled},
		OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusRefunded},
		OrderStatusProcessing:     {OrderStatusShipped, OrderStatusRefunded},
		OrderStatusShipped:        {OrderStatusDelivered},
		OrderStatusDelivered:      {},
		OrderStatusPaymentFailed:  {},
		OrderStatusCancelled:      {},
		OrderStatusRefunded:       {},
	}
}

// IsTerminalStatus reports whether the status admits no further transitions.
func IsTerminalStatus(status string) bool {
	allowed, ok := AllowedTransitions()[status]
	return ok && len(allowed) == 0
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	allowed, ok := AllowedTransitions()[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order has reached a terminal status.
func (o *Order) IsTerminal() bool {
	return IsTerminalStatus(o.Status)
}

// Cancellable reports whether the order can still be cancelled. Orders that
// have shipped are past the point of no return.
func (o *Order) Cancellable() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusPaymentPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	default:
		return false
	}
}

// Captured reports whether payment has been captured for this order, which
// determines whether cancellation requires a refund.
func (o *Order) Captured() bool {
	return o.PaymentTxID != ""
}
