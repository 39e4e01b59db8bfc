package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supply: a delivery against a purchase order (may carry several items)
type Supply struct {
	ID              uint          `gorm:"primaryKey"`
	PurchaseOrderID uint          `gorm:"index;not null"`
	PurchaseOrder   PurchaseOrder `gorm:"constraint:OnDelete:CASCADE"`
	UserID          uint          `gorm:"index;not null"`
	User            User          `gorm:"constraint:OnDelete:CASCADE"`
	SupplyDate      time.Time     `gorm:"type:date;not null;index"`
	DCPDF           string        `gorm:"column:dc_pdf;size:255"`
	InvoicePDF      string        `gorm:"column:invoice_pdf;size:255"`
	DCStamped       string        `gorm:"column:dc_stamped;size:255"`
	InvoiceStamped  string        `gorm:"column:invoice_stamped;size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items    []SupplyItem `gorm:"foreignKey:SupplyID;constraint:OnDelete:CASCADE"`
	Payments []Payment    `gorm:"foreignKey:SupplyID;constraint:OnDelete:CASCADE"`
}

// TotalAmount needs Items.POItem preloaded.
func (s *Supply) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.TotalAmount())
	}
	return total
}

// HasConfirmedPayment needs Payments preloaded.
func (s *Supply) HasConfirmedPayment() bool {
	for _, p := range s.Payments {
		if p.Status == PaymentConfirmed {
			return true
		}
	}
	return false
}

// SupplyItem: immutable once created together with its supply.
type SupplyItem struct {
	ID        uint   `gorm:"primaryKey"`
	SupplyID  uint   `gorm:"index;not null"`
	POItemID  uint   `gorm:"column:po_item_id;index;not null"`
	POItem    POItem `gorm:"foreignKey:POItemID;constraint:OnDelete:RESTRICT"`
	Quantity  int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i SupplyItem) TotalAmount() decimal.Decimal {
	return i.POItem.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
