package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"procurement-backend/internal/access"
	"procurement-backend/internal/models"

	"gorm.io/gorm"
)

const (
	EntityPurchaseOrder = "purchase_order"
	EntitySupply        = "supply"
	EntityPayment       = "payment"
	EntityUser          = "user"
)

type LogOptions struct {
	Actor       access.Actor
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog appends an entry using tx, so the entry commits or rolls back
// together with the change it describes.
func WriteLog(tx *gorm.DB, opts LogOptions) error {
	entry := models.AuditLog{
		UserID:      opts.Actor.ID,
		UserName:    opts.Actor.Name,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

type Filter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Limit      int
}

// List returns the newest entries first. Admin only.
func List(ctx context.Context, db *gorm.DB, actor access.Actor, f Filter) ([]models.AuditLog, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
