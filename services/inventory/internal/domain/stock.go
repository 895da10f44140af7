package domain

import (
	"time"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

// StockStatus is the derived availability classification of a stock item.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
	StockStatusReserved   StockStatus = "reserved"
)

// StockItem is one product's row in the stock ledger. Available is always
// derived from the two counters and never stored.
type StockItem struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	SKU          string    `json:"sku"`
	OnHand       int       `json:"on_hand"`
	Reserved     int       `json:"reserved"`
	ReorderLevel int       `json:"reorder_level"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available returns the sellable quantity: on hand minus reserved.
func (s *StockItem) Available() int {
	return s.OnHand - s.Reserved
}

// Status derives the availability classification. A fully-reserved item that
// is still physically on hand reports "reserved" rather than "out_of_stock":
// the units exist but none can be sold until a hold resolves.
func (s *StockItem) Status() StockStatus {
	available := s.Available()
	switch {
	case available == 0 && s.Reserved > 0 && s.OnHand > 0:
		return StockStatusReserved
	case available <= 0:
		return StockStatusOutOfStock
	case available <= s.ReorderLevel:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// ShouldReorder reports whether available has fallen to the reorder level.
func (s *StockItem) ShouldReorder() bool {
	return s.Available() <= s.ReorderLevel
}

// CanReserve checks the counter invariants for taking a hold of quantity.
func (s *StockItem) CanReserve(quantity int) error {
	if quantity <= 0 {
		return apperrors.InvalidQuantity("reserve quantity must be positive")
	}
	if s.Available() < quantity {
		return apperrors.InsufficientStock(s.ProductID, quantity, s.Available())
	}
	return nil
}

// CanRelease checks that releasing quantity does not exceed the reserved
// counter.
func (s *StockItem) CanRelease(quantity int) error {
	if quantity <= 0 {
		return apperrors.InvalidQuantity("release quantity must be positive")
	}
	if quantity > s.Reserved {
		return apperrors.OverRelease(s.ProductID, quantity, s.Reserved)
	}
	return nil
}

// CanDeduct checks that a permanent deduction of quantity is covered by an
// existing hold.
func (s *StockItem) CanDeduct(quantity int) error {
	if quantity <= 0 {
		return apperrors.InvalidQuantity("deduct quantity must be positive")
	}
	if quantity > s.Reserved {
		return apperrors.OverRelease(s.ProductID, quantity, s.Reserved)
	}
	return nil
}
