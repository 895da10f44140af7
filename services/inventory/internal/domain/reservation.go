package domain

import "time"

// ReservationStatus is the lifecycle state of a stock hold.
type ReservationStatus string

const (
	// ReservationStatusPending holds stock until confirmed, cancelled, or expired.
	ReservationStatusPending ReservationStatus = "pending"
	// ReservationStatusConfirmed means payment captured and stock deducted.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// ReservationStatusCancelled means the hold was explicitly released.
	ReservationStatusCancelled ReservationStatus = "cancelled"
	// ReservationStatusExpired means the sweeper reclaimed the hold after its TTL.
	ReservationStatusExpired ReservationStatus = "expired"
)

// Reservation is a time-bounded hold of stock for one product within one
// order.
type Reservation struct {
	ID         string            `json:"id"`
	OrderID    string            `json:"order_id"`
	ProductID  string            `json:"product_id"`
	CustomerID string            `json:"customer_id"`
	Quantity   int               `json:"quantity"`
	Status     ReservationStatus `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// IsTerminal reports whether the reservation has reached a final state.
// Terminal reservations never change again.
func (r *Reservation) IsTerminal() bool {
	return r.Status != ReservationStatusPending
}

// IsExpired reports whether a pending reservation's TTL has elapsed.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusPending && now.After(r.ExpiresAt)
}

// ReservationRequest is one line of a reserve call.
type ReservationRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
