package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending           OrderStatus = "Pending"
	OrderPartiallySupplied OrderStatus = "Partially Supplied"
	OrderFullySupplied     OrderStatus = "Fully Supplied"
)

// PurchaseOrder: a user's order towards an institution. Status is rewritten
// by every transaction that changes item fulfillment.
type PurchaseOrder struct {
	ID                 uint        `gorm:"primaryKey"`
	UserID             uint        `gorm:"index;not null"`
	User               User        `gorm:"constraint:OnDelete:CASCADE"`
	PONumber           string      `gorm:"column:po_number;size:255;uniqueIndex;not null"`
	PODate             time.Time   `gorm:"column:po_date;type:date;not null"`
	POImage            string      `gorm:"column:po_image;size:255"`
	InstitutionName    string      `gorm:"size:255;not null"`
	InstitutionEmail   string      `gorm:"size:255"`
	InstitutionPhone   string      `gorm:"size:20"`
	InstitutionAddress string      `gorm:"type:text"`
	Status             OrderStatus `gorm:"size:30;not null;index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Items    []POItem `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE"`
	Supplies []Supply `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE"`
}

// TotalAmount sums price × quantity over the loaded items.
func (po *PurchaseOrder) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range po.Items {
		total = total.Add(it.TotalAmount())
	}
	return total
}

// POItem: one ordered line. Supplied counts units delivered so far.
type POItem struct {
	ID              uint            `gorm:"primaryKey"`
	PurchaseOrderID uint            `gorm:"index;not null"`
	Name            string          `gorm:"size:255;not null"`
	Price           decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Quantity        int             `gorm:"not null"`
	BatchNo         string          `gorm:"size:255"`
	MfgDate         *time.Time      `gorm:"type:date"`
	ExpDate         *time.Time      `gorm:"type:date"`
	Supplied        int             `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (POItem) TableName() string { return "po_items" }

func (i POItem) TotalAmount() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i POItem) RemainingQuantity() int { return i.Quantity - i.Supplied }

func (i POItem) IsFullySupplied() bool { return i.Supplied >= i.Quantity }
