package domain

import "time"

// Adjustment reasons recorded in the audit trail.
const (
	AdjustmentReasonRestock    = "restock"
	AdjustmentReasonCorrection = "correction"
	AdjustmentReasonDamage     = "damage"
	AdjustmentReasonOrder      = "order"
)

var validAdjustmentReasons = map[string]struct{}{
	AdjustmentReasonRestock:    {},
	AdjustmentReasonCorrection: {},
	AdjustmentReasonDamage:     {},
	AdjustmentReasonOrder:      {},
}

// IsValidAdjustmentReason reports whether the reason is one of the known
// audit categories.
func IsValidAdjustmentReason(reason string) bool {
	_, ok := validAdjustmentReasons[reason]
	return ok
}

// StockAdjustment is an audit row for every on-hand mutation outside the
// reserve/release cycle: restocks, corrections, and order deductions.
type StockAdjustment struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Delta       int       `json:"delta"`
	Reason      string    `json:"reason"`
	Actor       string    `json:"actor,omitempty"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
