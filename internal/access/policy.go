// Package access decides whether an actor may perform an action on a
// purchase order, supply or payment.
package access

import (
	"fmt"

	"procurement-backend/internal/apperr"
	"procurement-backend/internal/models"

	"gorm.io/gorm"
)

// Actor is the authenticated caller, passed explicitly into every operation.
type Actor struct {
	ID   uint
	Name string
	Role models.UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionConfirm Action = "confirm"
)

type Kind string

const (
	KindPurchaseOrder Kind = "purchase order"
	KindSupply        Kind = "supply"
	KindPayment       Kind = "payment"
)

// Resource is the part of a record the policy looks at.
type Resource struct {
	Kind    Kind
	ID      uint
	OwnerID uint
}

func PurchaseOrder(po *models.PurchaseOrder) Resource {
	return Resource{Kind: KindPurchaseOrder, ID: po.ID, OwnerID: po.UserID}
}

func Supply(s *models.Supply) Resource {
	return Resource{Kind: KindSupply, ID: s.ID, OwnerID: s.UserID}
}

// Payment is owned by whoever owns its supply; p.Supply must be loaded.
func Payment(p *models.Payment) Resource {
	return Resource{Kind: KindPayment, ID: p.ID, OwnerID: p.Supply.UserID}
}

// Allowed evaluates the capability set for one (actor, action, resource).
func Allowed(a Actor, action Action, r Resource) bool {
	if a.ID == 0 {
		return false
	}

	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleUser:
		owner := a.ID == r.OwnerID
		switch action {
		case ActionCreate:
			return true
		case ActionView, ActionUpdate:
			return owner
		case ActionDelete:
			// payments are removed only by an Admin rejecting them
			return owner && r.Kind != KindPayment
		case ActionConfirm:
			return false
		}
	}
	return false
}

// Authorize returns an error wrapping apperr.ErrForbidden when not Allowed.
func Authorize(a Actor, action Action, r Resource) error {
	if Allowed(a, action, r) {
		return nil
	}
	return fmt.Errorf("%s %s %d: %w", action, r.Kind, r.ID, apperr.ErrForbidden)
}

// RequireAdmin is used for operations that are not tied to one record.
func RequireAdmin(a Actor) error {
	if a.ID != 0 && a.IsAdmin() {
		return nil
	}
	return fmt.Errorf("admin role required: %w", apperr.ErrForbidden)
}

// Scope limits a listing query to the rows the actor may view. column is
// the owner column, e.g. "purchase_orders.user_id".
func Scope(a Actor, column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if a.IsAdmin() {
			return db
		}
		return db.Where(column+" = ?", a.ID)
	}
}
