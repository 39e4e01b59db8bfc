package supply

import (
	"fmt"

	"procurement-backend/internal/models"
)

// CapacityError rejects a requested quantity that does not fit the item.
type CapacityError struct {
	ItemID    uint
	ItemName  string
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("invalid supply quantity for item %q: available %d", e.ItemName, e.Remaining)
}

// Remaining is the quantity the item can still accept.
func Remaining(item *models.POItem) int {
	r := item.Quantity - item.Supplied
	if r < 0 {
		return 0
	}
	return r
}

// Apply accepts qty against item and bumps item.Supplied, or returns a
// *CapacityError leaving item untouched.
func Apply(item *models.POItem, qty int) error {
	remaining := Remaining(item)
	if qty <= 0 || qty > remaining {
		return &CapacityError{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Requested: qty,
			Remaining: remaining,
		}
	}
	item.Supplied += qty
	return nil
}

// OrderStatus derives an order's status from its items. An order without
// items, or without any supply, stays Pending.
func OrderStatus(items []models.POItem, hasSupplies bool) models.OrderStatus {
	if len(items) == 0 || !hasSupplies {
		return models.OrderPending
	}
	for _, it := range items {
		if !it.IsFullySupplied() {
			return models.OrderPartiallySupplied
		}
	}
	return models.OrderFullySupplied
}
