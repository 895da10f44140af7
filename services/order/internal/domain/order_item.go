package domain

// OrderItem is one line of an order's immutable item snapshot. UnitPrice is
// in minor currency units.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns the total price for this line item.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}
