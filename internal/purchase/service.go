package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"procurement-backend/internal/access"
	"procurement-backend/internal/apperr"
	"procurement-backend/internal/audit"
	"procurement-backend/internal/database"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"
	"procurement-backend/internal/supply"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	dateLayout   = "2006-01-02"
	maxImageSize = 2 << 20
	imageDir     = "po_images"
)

type ItemInput struct {
	ID       uint            `json:"id,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	BatchNo  string          `json:"batch_no"`
	MfgDate  string          `json:"mfg_date"`
	ExpDate  string          `json:"exp_date"`
}

type Input struct {
	PONumber           string      `json:"po_number"`
	PODate             string      `json:"po_date"`
	InstitutionName    string      `json:"institution_name"`
	InstitutionEmail   string      `json:"institution_email"`
	InstitutionPhone   string      `json:"institution_phone"`
	InstitutionAddress string      `json:"institution_address"`
	Items              []ItemInput `json:"items"`
}

type ListFilter struct {
	Page   int
	Status models.OrderStatus
	Search string
}

type Service struct {
	db    *gorm.DB
	store storage.Store
}

func NewService(db *gorm.DB, store storage.Store) *Service {
	return &Service{db: db, store: store}
}

// validated is Input after parsing; items keep their input order.
type validated struct {
	header models.PurchaseOrder
	items  []models.POItem
}

func validate(in Input) (*validated, error) {
	var verr apperr.ValidationErrors
	v := &validated{}

	in.PONumber = strings.TrimSpace(in.PONumber)
	switch {
	case in.PONumber == "":
		verr.Add("po_number", "PO number is required")
	case len(in.PONumber) > 255:
		verr.Add("po_number", "PO number may not be longer than 255 characters")
	}

	poDate, ok := parseDate(&verr, "po_date", in.PODate)
	if ok && poDate == nil {
		verr.Add("po_date", "PO date is required")
	}

	in.InstitutionName = strings.TrimSpace(in.InstitutionName)
	if in.InstitutionName == "" {
		verr.Add("institution_name", "institution name is required")
	} else if len(in.InstitutionName) > 255 {
		verr.Add("institution_name", "institution name may not be longer than 255 characters")
	}
	in.InstitutionEmail = strings.TrimSpace(in.InstitutionEmail)
	if in.InstitutionEmail != "" {
		if addr, err := mail.ParseAddress(in.InstitutionEmail); err != nil || addr.Address != in.InstitutionEmail {
			verr.Add("institution_email", "institution email must be a valid email address")
		}
	}
	in.InstitutionPhone = strings.TrimSpace(in.InstitutionPhone)
	if len(in.InstitutionPhone) > 20 {
		verr.Add("institution_phone", "institution phone may not be longer than 20 characters")
	}

	if len(in.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, it := range in.Items {
		field := func(name string) string { return fmt.Sprintf("items.%d.%s", i, name) }
		name := strings.TrimSpace(it.Name)
		if name == "" {
			verr.Add(field("name"), "item name is required")
		} else if len(name) > 255 {
			verr.Add(field("name"), "item name may not be longer than 255 characters")
		}
		if it.Price.IsNegative() {
			verr.Add(field("price"), "price must be at least 0")
		} else if !it.Price.Equal(it.Price.Round(2)) {
			verr.Add(field("price"), "price may have at most 2 decimal places")
		}
		if it.Quantity < 1 {
			verr.Add(field("quantity"), "quantity must be at least 1")
		}
		if len(it.BatchNo) > 255 {
			verr.Add(field("batch_no"), "batch number may not be longer than 255 characters")
		}
		mfg, _ := parseDate(&verr, field("mfg_date"), it.MfgDate)
		exp, _ := parseDate(&verr, field("exp_date"), it.ExpDate)
		if mfg != nil && exp != nil && exp.Before(*mfg) {
			verr.Add(field("exp_date"), "expiry date must be on or after the manufacturing date")
		}

		v.items = append(v.items, models.POItem{
			ID:       it.ID,
			Name:     name,
			Price:    it.Price,
			Quantity: it.Quantity,
			BatchNo:  strings.TrimSpace(it.BatchNo),
			MfgDate:  mfg,
			ExpDate:  exp,
		})
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	v.header = models.PurchaseOrder{
		PONumber:           in.PONumber,
		PODate:             *poDate,
		InstitutionName:    in.InstitutionName,
		InstitutionEmail:   in.InstitutionEmail,
		InstitutionPhone:   in.InstitutionPhone,
		InstitutionAddress: strings.TrimSpace(in.InstitutionAddress),
	}
	return v, nil
}

// parseDate returns nil for an empty value; ok is false when the value was
// present but malformed.
func parseDate(verr *apperr.ValidationErrors, field, s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		verr.Add(field, "date must be YYYY-MM-DD")
		return nil, false
	}
	return &t, true
}

func ensureUniqueNumber(tx *gorm.DB, number string, exceptID uint) error {
	var count int64
	q := tx.Model(&models.PurchaseOrder{}).Where("po_number = ?", number)
	if exceptID > 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check po number: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("PO number %s is already taken", number)
	}
	return nil
}

// Create stores a new order owned by the actor, status Pending.
func (s *Service) Create(ctx context.Context, actor access.Actor, in Input) (*models.PurchaseOrder, error) {
	if err := access.Authorize(actor, access.ActionCreate, access.Resource{Kind: access.KindPurchaseOrder, OwnerID: actor.ID}); err != nil {
		return nil, err
	}
	v, err := validate(in)
	if err != nil {
		return nil, err
	}

	po := v.header
	po.UserID = actor.ID
	po.Status = models.OrderPending
	for _, it := range v.items {
		it.ID = 0
		po.Items = append(po.Items, it)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUniqueNumber(tx, po.PONumber, 0); err != nil {
			return err
		}
		if err := tx.Omit("User", "Supplies").Create(&po).Error; err != nil {
			return fmt.Errorf("insert purchase order: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPurchaseOrder,
			EntityID:    po.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("PO %s created for %s", po.PONumber, po.InstitutionName),
			After:       snapshotOf(&po),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, po.ID)
}

func (s *Service) load(ctx context.Context, id uint) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("po_items.id ASC") }).
		Preload("Supplies", func(tx *gorm.DB) *gorm.DB { return tx.Order("supplies.supply_date DESC, supplies.id DESC") }).
		Preload("Supplies.User").
		Preload("Supplies.Items.POItem").
		Preload("Supplies.Payments").
		First(&po, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("purchase order", id)
		}
		return nil, fmt.Errorf("load purchase order %d: %w", id, err)
	}
	return &po, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id uint) (*models.PurchaseOrder, error) {
	po, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionView, access.PurchaseOrder(po)); err != nil {
		return nil, err
	}
	return po, nil
}

// List returns one page of orders, newest first. Users only see their own.
func (s *Service) List(ctx context.Context, actor access.Actor, f ListFilter) (database.Page[models.PurchaseOrder], error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.PurchaseOrder{}).
			Scopes(access.Scope(actor, "purchase_orders.user_id"))
		if f.Status != "" {
			q = q.Where("purchase_orders.status = ?", f.Status)
		}
		if term := strings.TrimSpace(f.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			q = q.Where("LOWER(purchase_orders.po_number) LIKE ? OR LOWER(purchase_orders.institution_name) LIKE ?", like, like)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return database.Page[models.PurchaseOrder]{}, fmt.Errorf("count purchase orders: %w", err)
	}

	var rows []models.PurchaseOrder
	err := base().
		Preload("User").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("po_items.id ASC") }).
		Order("purchase_orders.created_at DESC, purchase_orders.id DESC").
		Scopes(database.Paginate(f.Page)).
		Find(&rows).Error
	if err != nil {
		return database.Page[models.PurchaseOrder]{}, fmt.Errorf("list purchase orders: %w", err)
	}
	return database.NewPage(rows, total, f.Page), nil
}

// Update replaces the header and reconciles the items: items with an id are
// updated, items without one are added, and missing ones are removed. An
// item may not drop below what was already supplied, and an item with
// supplies may not be removed.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uint, in Input) (*models.PurchaseOrder, error) {
	v, err := validate(in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var po models.PurchaseOrder
		if err := database.ForUpdate(tx).First(&po, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("purchase order", id)
			}
			return fmt.Errorf("lock purchase order: %w", err)
		}
		if err := access.Authorize(actor, access.ActionUpdate, access.PurchaseOrder(&po)); err != nil {
			return err
		}
		if err := ensureUniqueNumber(tx, v.header.PONumber, po.ID); err != nil {
			return err
		}

		var existing []models.POItem
		if err := tx.Where("purchase_order_id = ?", po.ID).Order("id ASC").Find(&existing).Error; err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		po.Items = existing
		before := snapshotOf(&po)

		byID := make(map[uint]models.POItem, len(existing))
		for _, it := range existing {
			byID[it.ID] = it
		}

		var verr apperr.ValidationErrors
		keep := make(map[uint]bool, len(v.items))
		for i, it := range v.items {
			if it.ID == 0 {
				continue
			}
			cur, ok := byID[it.ID]
			if !ok {
				verr.Add(fmt.Sprintf("items.%d.id", i), fmt.Sprintf("item %d does not belong to this purchase order", it.ID))
				continue
			}
			if keep[it.ID] {
				verr.Add(fmt.Sprintf("items.%d.id", i), fmt.Sprintf("item %d is listed twice", it.ID))
				continue
			}
			keep[it.ID] = true
			if it.Quantity < cur.Supplied {
				verr.Add(fmt.Sprintf("items.%d.quantity", i),
					fmt.Sprintf("quantity cannot be less than the %d units already supplied", cur.Supplied))
			}
		}
		for _, cur := range existing {
			if keep[cur.ID] {
				continue
			}
			used, err := itemInUse(tx, cur)
			if err != nil {
				return err
			}
			if used {
				verr.Add("items", fmt.Sprintf("item %q has recorded supplies and cannot be removed", cur.Name))
			}
		}
		if err := verr.Err(); err != nil {
			return err
		}

		for _, cur := range existing {
			if keep[cur.ID] {
				continue
			}
			if err := tx.Delete(&models.POItem{}, cur.ID).Error; err != nil {
				return fmt.Errorf("delete item %d: %w", cur.ID, err)
			}
		}
		for _, it := range v.items {
			if it.ID == 0 {
				it.PurchaseOrderID = po.ID
				if err := tx.Create(&it).Error; err != nil {
					return fmt.Errorf("insert item: %w", err)
				}
				continue
			}
			err := tx.Model(&models.POItem{ID: it.ID}).
				Select("name", "price", "quantity", "batch_no", "mfg_date", "exp_date").
				Updates(&it).Error
			if err != nil {
				return fmt.Errorf("update item %d: %w", it.ID, err)
			}
		}

		err := tx.Model(&models.PurchaseOrder{ID: po.ID}).
			Select("po_number", "po_date", "institution_name", "institution_email", "institution_phone", "institution_address").
			Updates(&v.header).Error
		if err != nil {
			return fmt.Errorf("update purchase order: %w", err)
		}

		if _, err := supply.RefreshOrderStatus(tx, po.ID); err != nil {
			return err
		}

		var after models.PurchaseOrder
		if err := tx.Preload("Items").First(&after, po.ID).Error; err != nil {
			return fmt.Errorf("reload purchase order: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPurchaseOrder,
			EntityID:    po.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("PO %s updated", after.PONumber),
			Before:      before,
			After:       snapshotOf(&after),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func itemInUse(tx *gorm.DB, item models.POItem) (bool, error) {
	if item.Supplied > 0 {
		return true, nil
	}
	var n int64
	if err := tx.Model(&models.SupplyItem{}).Where("po_item_id = ?", item.ID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count supplies of item %d: %w", item.ID, err)
	}
	return n > 0, nil
}

// Delete removes the order with its items, supplies, supply items and
// payments, then the files they referenced.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	var artifacts []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var po models.PurchaseOrder
		if err := tx.Preload("Items").Preload("Supplies.Payments").First(&po, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("purchase order", id)
			}
			return fmt.Errorf("load purchase order: %w", err)
		}
		if err := access.Authorize(actor, access.ActionDelete, access.PurchaseOrder(&po)); err != nil {
			return err
		}

		artifacts = append(artifacts, po.POImage)
		supplyIDs := make([]uint, 0, len(po.Supplies))
		for _, sup := range po.Supplies {
			supplyIDs = append(supplyIDs, sup.ID)
			artifacts = append(artifacts, sup.DCPDF, sup.InvoicePDF, sup.DCStamped, sup.InvoiceStamped)
			for _, p := range sup.Payments {
				artifacts = append(artifacts, p.ChequeImage)
			}
		}

		if len(supplyIDs) > 0 {
			if err := tx.Where("supply_id IN ?", supplyIDs).Delete(&models.Payment{}).Error; err != nil {
				return fmt.Errorf("delete payments: %w", err)
			}
			if err := tx.Where("supply_id IN ?", supplyIDs).Delete(&models.SupplyItem{}).Error; err != nil {
				return fmt.Errorf("delete supply items: %w", err)
			}
			if err := tx.Where("id IN ?", supplyIDs).Delete(&models.Supply{}).Error; err != nil {
				return fmt.Errorf("delete supplies: %w", err)
			}
		}
		if err := tx.Where("purchase_order_id = ?", po.ID).Delete(&models.POItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := tx.Delete(&models.PurchaseOrder{}, po.ID).Error; err != nil {
			return fmt.Errorf("delete purchase order: %w", err)
		}

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPurchaseOrder,
			EntityID:    po.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("PO %s deleted with %d supplies", po.PONumber, len(supplyIDs)),
			Before:      snapshotOf(&po),
		})
	})
	if err != nil {
		return err
	}

	for _, ref := range artifacts {
		if ref == "" {
			continue
		}
		if err := s.store.Delete(ctx, ref); err != nil {
			log.Printf("[WARN] could not delete artifact %s: %v", ref, err)
		}
	}
	return nil
}

// SetImage stores a scan of the paper order, replacing any previous one.
func (s *Service) SetImage(ctx context.Context, actor access.Actor, id uint, file *storage.File) (*models.PurchaseOrder, error) {
	if file == nil {
		return nil, apperr.Invalid("po_image", "image is required")
	}
	if len(file.Data) > maxImageSize {
		return nil, apperr.Invalid("po_image", "image may not be larger than 2 MB")
	}
	if !file.IsImage() {
		return nil, apperr.Invalid("po_image", "file must be an image")
	}

	var po models.PurchaseOrder
	if err := s.db.WithContext(ctx).First(&po, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("purchase order", id)
		}
		return nil, fmt.Errorf("load purchase order: %w", err)
	}
	if err := access.Authorize(actor, access.ActionUpdate, access.PurchaseOrder(&po)); err != nil {
		return nil, err
	}

	ref, err := s.store.Put(ctx, storage.UploadName(imageDir, file.Name), file.Data)
	if err != nil {
		return nil, fmt.Errorf("store po image: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PurchaseOrder{ID: po.ID}).UpdateColumn("po_image", ref).Error; err != nil {
			return fmt.Errorf("record po image: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPurchaseOrder,
			EntityID:    po.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("PO %s image uploaded", po.PONumber),
			Before:      map[string]string{"po_image": po.POImage},
			After:       map[string]string{"po_image": ref},
		})
	})
	if err != nil {
		_ = s.store.Delete(ctx, ref)
		return nil, err
	}

	if po.POImage != "" && po.POImage != ref {
		if err := s.store.Delete(ctx, po.POImage); err != nil {
			log.Printf("[WARN] could not delete artifact %s: %v", po.POImage, err)
		}
	}
	return s.load(ctx, id)
}

// Image returns the stored order scan.
func (s *Service) Image(ctx context.Context, actor access.Actor, id uint) (string, []byte, error) {
	po, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", nil, err
	}
	if po.POImage == "" {
		return "", nil, apperr.NotFound("image of purchase order", id)
	}
	data, err := s.store.Get(ctx, po.POImage)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", nil, apperr.NotFound("image of purchase order", id)
		}
		return "", nil, fmt.Errorf("read %s: %w", po.POImage, err)
	}
	return po.POImage, data, nil
}

// Supplyable lists the actor's orders that can still receive supplies,
// each with only the items that have remaining capacity.
func (s *Service) Supplyable(ctx context.Context, actor access.Actor) ([]models.PurchaseOrder, error) {
	var rows []models.PurchaseOrder
	err := s.db.WithContext(ctx).
		Scopes(access.Scope(actor, "purchase_orders.user_id")).
		Where("purchase_orders.status <> ?", models.OrderFullySupplied).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("po_items.supplied < po_items.quantity").Order("po_items.id ASC")
		}).
		Order("purchase_orders.po_date DESC, purchase_orders.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list supplyable orders: %w", err)
	}

	out := rows[:0]
	for _, po := range rows {
		if len(po.Items) > 0 {
			out = append(out, po)
		}
	}
	return out, nil
}

func snapshotOf(po *models.PurchaseOrder) map[string]any {
	items := make([]map[string]any, 0, len(po.Items))
	for _, it := range po.Items {
		items = append(items, map[string]any{
			"id":       it.ID,
			"name":     it.Name,
			"price":    it.Price.StringFixed(2),
			"quantity": it.Quantity,
			"supplied": it.Supplied,
		})
	}
	return map[string]any{
		"id":               po.ID,
		"po_number":        po.PONumber,
		"po_date":          po.PODate.Format(dateLayout),
		"institution_name": po.InstitutionName,
		"status":           po.Status,
		"items":            items,
	}
}
