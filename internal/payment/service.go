package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"procurement-backend/internal/access"
	"procurement-backend/internal/apperr"
	"procurement-backend/internal/audit"
	"procurement-backend/internal/database"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxChequeImageSize = 2 << 20
	chequeDir          = "cheque_images"
)

type CreateInput struct {
	SupplyID    uint            `json:"supply_id" form:"supply_id"`
	ChequeNo    string          `json:"cheque_no" form:"cheque_no"`
	Amount      decimal.Decimal `json:"amount" form:"-"`
	ChequeImage *storage.File   `json:"-" form:"-"`
}

type Service struct {
	db    *gorm.DB
	store storage.Store
}

func NewService(db *gorm.DB, store storage.Store) *Service {
	return &Service{db: db, store: store}
}

func validateCreate(in *CreateInput) error {
	var verr apperr.ValidationErrors
	if in.SupplyID == 0 {
		verr.Add("supply_id", "supply is required")
	}
	in.ChequeNo = strings.TrimSpace(in.ChequeNo)
	switch {
	case in.ChequeNo == "":
		verr.Add("cheque_no", "cheque number is required")
	case len(in.ChequeNo) > 255:
		verr.Add("cheque_no", "cheque number may not be longer than 255 characters")
	}
	if !in.Amount.IsPositive() {
		verr.Add("amount", "amount must be greater than 0")
	} else if !in.Amount.Equal(in.Amount.Round(2)) {
		verr.Add("amount", "amount may have at most 2 decimal places")
	}
	if f := in.ChequeImage; f != nil {
		if len(f.Data) > maxChequeImageSize {
			verr.Add("cheque_image", "cheque image must not exceed 2MB")
		} else if !f.IsImage() {
			verr.Add("cheque_image", "cheque image must be a valid image file")
		}
	}
	return verr.Err()
}

// Create records a Pending payment against a supply the actor can view.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*models.Payment, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	var imageRef string
	if in.ChequeImage != nil {
		ref, err := s.store.Put(ctx, storage.UploadName(chequeDir, in.ChequeImage.Name), in.ChequeImage.Data)
		if err != nil {
			return nil, fmt.Errorf("store cheque image: %w", err)
		}
		imageRef = ref
	}

	p := models.Payment{
		SupplyID:    in.SupplyID,
		ChequeNo:    in.ChequeNo,
		Amount:      in.Amount.Round(2),
		ChequeImage: imageRef,
		Status:      models.PaymentPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sup models.Supply
		if err := database.ForUpdate(tx).First(&sup, in.SupplyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("supply", in.SupplyID)
			}
			return fmt.Errorf("load supply: %w", err)
		}
		if err := access.Authorize(actor, access.ActionView, access.Supply(&sup)); err != nil {
			return err
		}

		var confirmed int64
		if err := tx.Model(&models.Payment{}).
			Where("supply_id = ? AND status = ?", sup.ID, models.PaymentConfirmed).
			Count(&confirmed).Error; err != nil {
			return fmt.Errorf("check confirmed payments: %w", err)
		}
		if confirmed > 0 {
			return apperr.Conflict("supply %d is already paid", sup.ID)
		}

		if err := tx.Omit(clause.Associations).Create(&p).Error; err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPayment,
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Cheque %s for %s submitted against supply %d", p.ChequeNo, p.Amount.StringFixed(2), sup.ID),
			After:       snapshotOf(&p),
		})
	})
	if err != nil {
		if imageRef != "" {
			_ = s.store.Delete(ctx, imageRef)
		}
		return nil, err
	}
	return s.load(ctx, s.db, p.ID)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id uint) (*models.Payment, error) {
	var p models.Payment
	err := db.WithContext(ctx).
		Preload("Supply.PurchaseOrder").
		Preload("Supply.User").
		Preload("Supply.Items.POItem").
		First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment", id)
		}
		return nil, fmt.Errorf("load payment %d: %w", id, err)
	}
	return &p, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id uint) (*models.Payment, error) {
	p, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.ActionView, access.Payment(p)); err != nil {
		return nil, err
	}
	return p, nil
}

type ListFilter struct {
	Page   int
	Status models.PaymentStatus
}

// List returns payments newest first; a User sees payments of their own
// supplies only.
func (s *Service) List(ctx context.Context, actor access.Actor, f ListFilter) (database.Page[models.Payment], error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Payment{}).
			Joins("JOIN supplies ON supplies.id = payments.supply_id").
			Scopes(access.Scope(actor, "supplies.user_id"))
		if f.Status != "" {
			q = q.Where("payments.status = ?", f.Status)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return database.Page[models.Payment]{}, fmt.Errorf("count payments: %w", err)
	}

	var rows []models.Payment
	err := base().
		Preload("Supply.PurchaseOrder").
		Preload("Supply.User").
		Order("payments.created_at DESC, payments.id DESC").
		Scopes(database.Paginate(f.Page)).
		Find(&rows).Error
	if err != nil {
		return database.Page[models.Payment]{}, fmt.Errorf("list payments: %w", err)
	}
	return database.NewPage(rows, total, f.Page), nil
}

// Payable lists the actor's supplies that have no confirmed payment yet.
func (s *Service) Payable(ctx context.Context, actor access.Actor) ([]models.Supply, error) {
	var rows []models.Supply
	err := s.db.WithContext(ctx).
		Scopes(access.Scope(actor, "supplies.user_id")).
		Where("NOT EXISTS (SELECT 1 FROM payments WHERE payments.supply_id = supplies.id AND payments.status = ?)", models.PaymentConfirmed).
		Preload("PurchaseOrder").
		Preload("Items.POItem").
		Preload("Payments").
		Order("supplies.supply_date DESC, supplies.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payable supplies: %w", err)
	}
	return rows, nil
}

// Confirm moves a Pending payment to Confirmed. Admin only.
func (s *Service) Confirm(ctx context.Context, actor access.Actor, id uint) (*models.Payment, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockForDecision(tx, actor, id)
		if err != nil {
			return err
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", p.ID, models.PaymentPending).
			Update("status", models.PaymentConfirmed)
		if res.Error != nil {
			return fmt.Errorf("confirm payment: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("payment %d is no longer pending", p.ID)
		}

		before := snapshotOf(p)
		p.Status = models.PaymentConfirmed
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPayment,
			EntityID:    p.ID,
			Action:      models.AuditActionConfirm,
			Description: fmt.Sprintf("Cheque %s confirmed", p.ChequeNo),
			Before:      before,
			After:       snapshotOf(p),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, id)
}

// Reject deletes a Pending payment and its cheque image. Admin only.
func (s *Service) Reject(ctx context.Context, actor access.Actor, id uint) error {
	var image string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockForDecision(tx, actor, id)
		if err != nil {
			return err
		}

		res := tx.Where("id = ? AND status = ?", p.ID, models.PaymentPending).Delete(&models.Payment{})
		if res.Error != nil {
			return fmt.Errorf("reject payment: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("payment %d is no longer pending", p.ID)
		}
		image = p.ChequeImage

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityPayment,
			EntityID:    p.ID,
			Action:      models.AuditActionReject,
			Description: fmt.Sprintf("Cheque %s rejected and removed", p.ChequeNo),
			Before:      snapshotOf(p),
		})
	})
	if err != nil {
		return err
	}

	if image != "" {
		if err := s.store.Delete(ctx, image); err != nil {
			log.Printf("[WARN] could not delete artifact %s: %v", image, err)
		}
	}
	return nil
}

// lockForDecision loads the payment inside tx and checks that the actor may
// decide on it and that it is still Pending.
func lockForDecision(tx *gorm.DB, actor access.Actor, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := database.ForUpdate(tx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment", id)
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if err := tx.First(&p.Supply, p.SupplyID).Error; err != nil {
		return nil, fmt.Errorf("load supply of payment %d: %w", id, err)
	}
	if err := access.Authorize(actor, access.ActionConfirm, access.Payment(&p)); err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return nil, apperr.Conflict("payment %d is %s, only pending payments can be decided", p.ID, p.Status)
	}
	return &p, nil
}

// ChequeImage returns the stored cheque scan.
func (s *Service) ChequeImage(ctx context.Context, actor access.Actor, id uint) (string, []byte, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", nil, err
	}
	if p.ChequeImage == "" {
		return "", nil, apperr.NotFound("cheque image of payment", id)
	}
	data, err := s.store.Get(ctx, p.ChequeImage)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", nil, apperr.NotFound("cheque image of payment", id)
		}
		return "", nil, fmt.Errorf("read %s: %w", p.ChequeImage, err)
	}
	return p.ChequeImage, data, nil
}

func snapshotOf(p *models.Payment) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"supply_id":    p.SupplyID,
		"cheque_no":    p.ChequeNo,
		"amount":       p.Amount.StringFixed(2),
		"cheque_image": p.ChequeImage,
		"status":       p.Status,
	}
}
