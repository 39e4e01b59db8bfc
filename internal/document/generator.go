package document

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"procurement-backend/internal/apperr"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Generator struct {
	db       *gorm.DB
	store    storage.Store
	renderer Renderer
	opts     Options
	now      func() time.Time
}

func NewGenerator(db *gorm.DB, store storage.Store, renderer Renderer, opts Options) *Generator {
	return &Generator{db: db, store: store, renderer: renderer, opts: opts, now: time.Now}
}

// WithClock replaces the clock used for artifact names.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	cp.now = now
	return &cp
}

// ArtifactNames returns the storage names for a supply generated at t.
func ArtifactNames(supplyID uint, t time.Time) (dc, invoice string) {
	day := t.Format("20060102")
	return fmt.Sprintf("dc/DC-%d-%s.pdf", supplyID, day),
		fmt.Sprintf("invoices/INV-%d-%s.pdf", supplyID, day)
}

// LoadSupply fetches a supply with everything the documents print.
func LoadSupply(ctx context.Context, db *gorm.DB, id uint) (*models.Supply, error) {
	var s models.Supply
	err := db.WithContext(ctx).
		Preload("PurchaseOrder").
		Preload("User").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("supply_items.id ASC") }).
		Preload("Items.POItem").
		First(&s, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("supply", id)
		}
		return nil, fmt.Errorf("load supply %d: %w", id, err)
	}
	return &s, nil
}

// Generate renders both documents, stores them and records both references
// on the supply in one update. Nothing is recorded unless every step
// succeeds; superseded artifacts are removed afterwards.
func (g *Generator) Generate(ctx context.Context, supplyID uint) (*models.Supply, error) {
	s, err := LoadSupply(ctx, g.db, supplyID)
	if err != nil {
		return nil, err
	}

	var dcPDF, invoicePDF []byte
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := g.renderer.Render(Challan(s, g.opts))
		dcPDF = b
		return err
	})
	eg.Go(func() error {
		b, err := g.renderer.Render(Invoice(s, g.opts))
		invoicePDF = b
		return err
	})
	if err := eg.Wait(); err != nil {
		return s, &apperr.ArtifactError{Op: "render", SupplyID: s.ID, Err: err}
	}

	dcName, invName := ArtifactNames(s.ID, g.now())
	oldDC, oldInv := s.DCPDF, s.InvoicePDF

	dcRef, err := g.store.Put(ctx, dcName, dcPDF)
	if err != nil {
		return s, &apperr.ArtifactError{Op: "store", SupplyID: s.ID, Err: err}
	}
	invRef, err := g.store.Put(ctx, invName, invoicePDF)
	if err != nil {
		g.discard(ctx, dcRef, oldDC)
		return s, &apperr.ArtifactError{Op: "store", SupplyID: s.ID, Err: err}
	}

	err = g.db.WithContext(ctx).Model(&models.Supply{ID: s.ID}).Updates(map[string]any{
		"dc_pdf":      dcRef,
		"invoice_pdf": invRef,
	}).Error
	if err != nil {
		g.discard(ctx, dcRef, oldDC)
		g.discard(ctx, invRef, oldInv)
		return s, &apperr.ArtifactError{Op: "record", SupplyID: s.ID, Err: err}
	}
	s.DCPDF, s.InvoicePDF = dcRef, invRef

	g.discard(ctx, oldDC, dcRef)
	g.discard(ctx, oldInv, invRef)

	log.Printf("documents generated for supply %d: %s, %s", s.ID, dcRef, invRef)
	return s, nil
}

// discard deletes ref unless it is empty or still in use as keep.
func (g *Generator) discard(ctx context.Context, ref, keep string) {
	if ref == "" || ref == keep {
		return
	}
	if err := g.store.Delete(ctx, ref); err != nil {
		log.Printf("[WARN] could not delete artifact %s: %v", ref, err)
	}
}
