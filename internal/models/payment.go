package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentConfirmed PaymentStatus = "Confirmed"
)

// Payment: a cheque submitted against a supply. A rejected payment is
// deleted rather than kept with a third status.
type Payment struct {
	ID          uint            `gorm:"primaryKey"`
	SupplyID    uint            `gorm:"index;not null"`
	Supply      Supply          `gorm:"constraint:OnDelete:CASCADE"`
	ChequeNo    string          `gorm:"size:255;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	ChequeImage string          `gorm:"size:255"`
	Status      PaymentStatus   `gorm:"size:20;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
