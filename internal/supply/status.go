package supply

import (
	"fmt"

	"procurement-backend/internal/models"

	"gorm.io/gorm"
)

// RefreshOrderStatus recomputes and stores the status of one order. Call
// it with the transaction that changed the order's fulfillment.
func RefreshOrderStatus(tx *gorm.DB, purchaseOrderID uint) (models.OrderStatus, error) {
	var items []models.POItem
	if err := tx.Where("purchase_order_id = ?", purchaseOrderID).Find(&items).Error; err != nil {
		return "", fmt.Errorf("load items of order %d: %w", purchaseOrderID, err)
	}

	var supplies int64
	if err := tx.Model(&models.Supply{}).Where("purchase_order_id = ?", purchaseOrderID).Count(&supplies).Error; err != nil {
		return "", fmt.Errorf("count supplies of order %d: %w", purchaseOrderID, err)
	}

	status := OrderStatus(items, supplies > 0)
	if err := tx.Model(&models.PurchaseOrder{}).
		Where("id = ?", purchaseOrderID).
		UpdateColumn("status", status).Error; err != nil {
		return "", fmt.Errorf("update status of order %d: %w", purchaseOrderID, err)
	}
	return status, nil
}
