package supply

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"procurement-backend/internal/access"
	"procurement-backend/internal/apperr"
	"procurement-backend/internal/audit"
	"procurement-backend/internal/database"
	"procurement-backend/internal/document"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dateLayout     = "2006-01-02"
	maxStampedSize = 5 << 20
	stampedDir     = "supplies/stamped"
)

type ItemInput struct {
	POItemID uint `json:"po_item_id"`
	Quantity int  `json:"quantity"`
}

type CreateInput struct {
	PurchaseOrderID uint        `json:"purchase_order_id"`
	SupplyDate      string      `json:"supply_date"`
	Items           []ItemInput `json:"items"`
}

type Service struct {
	db    *gorm.DB
	docs  *document.Generator
	store storage.Store
}

func NewService(db *gorm.DB, docs *document.Generator, store storage.Store) *Service {
	return &Service{db: db, docs: docs, store: store}
}

func validateCreate(in CreateInput) (time.Time, apperr.ValidationErrors) {
	var verr apperr.ValidationErrors
	if in.PurchaseOrderID == 0 {
		verr.Add("purchase_order_id", "purchase order is required")
	}

	var date time.Time
	if strings.TrimSpace(in.SupplyDate) == "" {
		verr.Add("supply_date", "supply date is required")
	} else {
		d, err := time.Parse(dateLayout, strings.TrimSpace(in.SupplyDate))
		if err != nil {
			verr.Add("supply_date", "supply date must be YYYY-MM-DD")
		}
		date = d
	}

	if len(in.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, it := range in.Items {
		if it.POItemID == 0 {
			verr.Add(fmt.Sprintf("items.%d.po_item_id", i), "item is required")
		}
		if it.Quantity < 1 {
			verr.Add(fmt.Sprintf("items.%d.quantity", i), "quantity must be at least 1")
		}
	}
	return date, verr
}

// Create records a delivery against a purchase order. Capacity checks,
// counter increments and the order status change commit together; the
// documents are generated after commit. A document failure returns the
// committed supply along with an *apperr.ArtifactError.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*models.Supply, error) {
	date, verr := validateCreate(in)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var created models.Supply
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var po models.PurchaseOrder
		if err := database.ForUpdate(tx).First(&po, in.PurchaseOrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("purchase order", in.PurchaseOrderID)
			}
			return fmt.Errorf("lock purchase order: %w", err)
		}
		if err := access.Authorize(actor, access.ActionView, access.PurchaseOrder(&po)); err != nil {
			return err
		}
		if po.Status == models.OrderFullySupplied {
			return apperr.Invalid("purchase_order_id", "purchase order %s is already fully supplied", po.PONumber)
		}

		var items []models.POItem
		if err := tx.Where("purchase_order_id = ?", po.ID).Order("id ASC").Find(&items).Error; err != nil {
			return fmt.Errorf("load order items: %w", err)
		}
		byID := make(map[uint]*models.POItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		var verr apperr.ValidationErrors
		for i, line := range in.Items {
			item, ok := byID[line.POItemID]
			if !ok {
				verr.Add(fmt.Sprintf("items.%d.po_item_id", i), fmt.Sprintf("item %d does not belong to purchase order %s", line.POItemID, po.PONumber))
				continue
			}
			if err := Apply(item, line.Quantity); err != nil {
				verr.AddErr(fmt.Sprintf("items.%d.quantity", i), err)
			}
		}
		if err := verr.Err(); err != nil {
			return err
		}

		created = models.Supply{
			PurchaseOrderID: po.ID,
			UserID:          actor.ID,
			SupplyDate:      date,
		}
		if err := tx.Omit(clause.Associations).Create(&created).Error; err != nil {
			return fmt.Errorf("insert supply: %w", err)
		}

		for i, line := range in.Items {
			si := models.SupplyItem{SupplyID: created.ID, POItemID: line.POItemID, Quantity: line.Quantity}
			if err := tx.Omit(clause.Associations).Create(&si).Error; err != nil {
				return fmt.Errorf("insert supply item: %w", err)
			}
			created.Items = append(created.Items, si)

			// the row guard keeps supplied <= quantity even if the order lock
			// is unavailable on this database
			res := tx.Model(&models.POItem{}).
				Where("id = ? AND supplied + ? <= quantity", line.POItemID, line.Quantity).
				UpdateColumn("supplied", gorm.Expr("supplied + ?", line.Quantity))
			if res.Error != nil {
				return fmt.Errorf("increment supplied: %w", res.Error)
			}
			if res.RowsAffected != 1 {
				return s.capacityLost(tx, i, line)
			}
		}

		if _, err := RefreshOrderStatus(tx, po.ID); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntitySupply,
			EntityID:    created.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Supply recorded against PO %s", po.PONumber),
			After:       snapshotOf(&created),
		})
	})
	if err != nil {
		return nil, err
	}

	sup, err := s.docs.Generate(ctx, created.ID)
	if err != nil {
		var artErr *apperr.ArtifactError
		if errors.As(err, &artErr) {
			log.Printf("[WARN] supply %d saved but documents failed: %v", created.ID, err)
			if sup == nil {
				sup = &created
			}
			return sup, err
		}
		return nil, err
	}
	return sup, nil
}

func (s *Service) capacityLost(tx *gorm.DB, idx int, line ItemInput) error {
	var fresh models.POItem
	if err := tx.First(&fresh, line.POItemID).Error; err != nil {
		return fmt.Errorf("reload item %d: %w", line.POItemID, err)
	}
	var verr apperr.ValidationErrors
	verr.AddErr(fmt.Sprintf("items.%d.quantity", idx), &CapacityError{
		ItemID:    fresh.ID,
		ItemName:  fresh.Name,
		Requested: line.Quantity,
		Remaining: Remaining(&fresh),
	})
	return verr
}

func (s *Service) load(ctx context.Context, id uint) (*models.Supply, error) {
	var sup models.Supply
	err := s.db.WithContext(ctx).
		Preload("PurchaseOrder").
		Preload("User").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("supply_items.id ASC") }).
		Preload("Items.POItem").
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("payments.created_at DESC") }).
		First(&sup, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("supply", id)
		}
		return nil, fmt.Errorf("load supply %d: %w", id, err)
	}
	return &sup, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id uint) (*models.Supply, error) {
	sup, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionView, access.Supply(sup)); err != nil {
		return nil, err
	}
	return sup, nil
}

// List returns the actor's supplies (all of them for an Admin), newest first.
func (s *Service) List(ctx context.Context, actor access.Actor, page int) (database.Page[models.Supply], error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Supply{}).
			Scopes(access.Scope(actor, "supplies.user_id"))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return database.Page[models.Supply]{}, fmt.Errorf("count supplies: %w", err)
	}

	var rows []models.Supply
	err := base().
		Preload("PurchaseOrder").
		Preload("User").
		Preload("Items.POItem").
		Preload("Payments").
		Order("supplies.created_at DESC, supplies.id DESC").
		Scopes(database.Paginate(page)).
		Find(&rows).Error
	if err != nil {
		return database.Page[models.Supply]{}, fmt.Errorf("list supplies: %w", err)
	}
	return database.NewPage(rows, total, page), nil
}

// Delete removes a supply with its items and payments, hands the supplied
// quantities back to the order items and recomputes the order status.
// Stored artifacts are removed after commit.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	var artifacts []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sup models.Supply
		if err := tx.Preload("Items").First(&sup, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("supply", id)
			}
			return fmt.Errorf("load supply: %w", err)
		}
		if err := access.Authorize(actor, access.ActionDelete, access.Supply(&sup)); err != nil {
			return err
		}

		var po models.PurchaseOrder
		if err := database.ForUpdate(tx).First(&po, sup.PurchaseOrderID).Error; err != nil {
			return fmt.Errorf("lock purchase order: %w", err)
		}

		for _, it := range sup.Items {
			res := tx.Model(&models.POItem{}).
				Where("id = ? AND supplied >= ?", it.POItemID, it.Quantity).
				UpdateColumn("supplied", gorm.Expr("supplied - ?", it.Quantity))
			if res.Error != nil {
				return fmt.Errorf("decrement supplied: %w", res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("item %d has fewer supplied units than supply %d recorded", it.POItemID, sup.ID)
			}
		}

		var payments []models.Payment
		if err := tx.Where("supply_id = ?", sup.ID).Find(&payments).Error; err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		for _, p := range payments {
			artifacts = append(artifacts, p.ChequeImage)
		}
		if err := tx.Where("supply_id = ?", sup.ID).Delete(&models.Payment{}).Error; err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if err := tx.Where("supply_id = ?", sup.ID).Delete(&models.SupplyItem{}).Error; err != nil {
			return fmt.Errorf("delete supply items: %w", err)
		}
		if err := tx.Delete(&models.Supply{}, sup.ID).Error; err != nil {
			return fmt.Errorf("delete supply: %w", err)
		}

		if _, err := RefreshOrderStatus(tx, po.ID); err != nil {
			return err
		}

		artifacts = append(artifacts, sup.DCPDF, sup.InvoicePDF, sup.DCStamped, sup.InvoiceStamped)
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntitySupply,
			EntityID:    sup.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Supply deleted from PO %s", po.PONumber),
			Before:      snapshotOf(&sup),
		})
	})
	if err != nil {
		return err
	}

	removeArtifacts(ctx, s.store, artifacts...)
	return nil
}

// RegenerateDocuments renders and stores both documents again, replacing
// the current ones.
func (s *Service) RegenerateDocuments(ctx context.Context, actor access.Actor, id uint) (*models.Supply, error) {
	sup, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionUpdate, access.Supply(sup)); err != nil {
		return nil, err
	}
	if _, err := s.docs.Generate(ctx, sup.ID); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// UploadStamped stores signed copies of the challan and/or invoice. Either
// file may be nil but not both.
func (s *Service) UploadStamped(ctx context.Context, actor access.Actor, id uint, dc, invoice *storage.File) (*models.Supply, error) {
	var verr apperr.ValidationErrors
	if dc == nil && invoice == nil {
		verr.Add("dc_stamped", "a stamped delivery challan or invoice is required")
	}
	checkStamped(&verr, "dc_stamped", dc)
	checkStamped(&verr, "invoice_stamped", invoice)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	sup, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionUpdate, access.Supply(sup)); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	var stored, superseded []string
	put := func(column string, f *storage.File, old string) error {
		if f == nil {
			return nil
		}
		ref, err := s.store.Put(ctx, storage.UploadName(stampedDir, f.Name), f.Data)
		if err != nil {
			return fmt.Errorf("store %s: %w", column, err)
		}
		stored = append(stored, ref)
		superseded = append(superseded, old)
		updates[column] = ref
		return nil
	}
	if err := put("dc_stamped", dc, sup.DCStamped); err != nil {
		removeArtifacts(ctx, s.store, stored...)
		return nil, err
	}
	if err := put("invoice_stamped", invoice, sup.InvoiceStamped); err != nil {
		removeArtifacts(ctx, s.store, stored...)
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Supply{ID: sup.ID}).Updates(updates).Error; err != nil {
			return fmt.Errorf("record stamped documents: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntitySupply,
			EntityID:    sup.ID,
			Action:      models.AuditActionUpdate,
			Description: "Stamped documents uploaded",
			Before:      map[string]string{"dc_stamped": sup.DCStamped, "invoice_stamped": sup.InvoiceStamped},
			After:       updates,
		})
	})
	if err != nil {
		removeArtifacts(ctx, s.store, stored...)
		return nil, err
	}

	removeArtifacts(ctx, s.store, superseded...)
	return s.load(ctx, id)
}

func checkStamped(verr *apperr.ValidationErrors, field string, f *storage.File) {
	if f == nil {
		return
	}
	if len(f.Data) > maxStampedSize {
		verr.Add(field, "file may not be larger than 5 MB")
		return
	}
	if !f.IsPDF() {
		verr.Add(field, "file must be a PDF")
	}
}

// DocumentKind selects one of the four files a supply can carry.
type DocumentKind string

const (
	DocChallan        DocumentKind = "dc"
	DocInvoice        DocumentKind = "invoice"
	DocChallanStamped DocumentKind = "dc-stamped"
	DocInvoiceStamped DocumentKind = "invoice-stamped"
)

// Document returns the stored file of the given kind.
func (s *Service) Document(ctx context.Context, actor access.Actor, id uint, kind DocumentKind) (string, []byte, error) {
	sup, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if err := access.Authorize(actor, access.ActionView, access.Supply(sup)); err != nil {
		return "", nil, err
	}

	var ref string
	switch kind {
	case DocChallan:
		ref = sup.DCPDF
	case DocInvoice:
		ref = sup.InvoicePDF
	case DocChallanStamped:
		ref = sup.DCStamped
	case DocInvoiceStamped:
		ref = sup.InvoiceStamped
	default:
		return "", nil, apperr.Invalid("kind", "unknown document %q", kind)
	}
	if ref == "" {
		return "", nil, apperr.NotFound("document "+string(kind)+" of supply", id)
	}

	data, err := s.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", nil, apperr.NotFound("document "+string(kind)+" of supply", id)
		}
		return "", nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return ref, data, nil
}

func removeArtifacts(ctx context.Context, store storage.Store, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := store.Delete(ctx, ref); err != nil {
			log.Printf("[WARN] could not delete artifact %s: %v", ref, err)
		}
	}
}

func snapshotOf(sup *models.Supply) map[string]any {
	items := make([]map[string]any, 0, len(sup.Items))
	for _, it := range sup.Items {
		items = append(items, map[string]any{"po_item_id": it.POItemID, "quantity": it.Quantity})
	}
	return map[string]any{
		"id":                sup.ID,
		"purchase_order_id": sup.PurchaseOrderID,
		"supply_date":       sup.SupplyDate.Format(dateLayout),
		"items":             items,
	}
}
