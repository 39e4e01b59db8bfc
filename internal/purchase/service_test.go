package purchase

import (
	"context"
	"testing"

	"procurement-backend/internal/apperr"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"
	"procurement-backend/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput(number string) Input {
	return Input{
		PONumber:         number,
		PODate:           "2024-03-01",
		InstitutionName:  "City Hospital",
		InstitutionEmail: "stores@cityhospital.example",
		Items: []ItemInput{
			{Name: "Gloves", Price: decimal.RequireFromString("12.50"), Quantity: 100, BatchNo: "B-1", MfgDate: "2024-01-01", ExpDate: "2026-01-01"},
			{Name: "Masks", Price: decimal.RequireFromString("3.00"), Quantity: 10},
		},
	}
}

func TestCreatePurchaseOrder(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, storage.NewMemoryStore())
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)
	ctx := context.Background()

	po, err := svc.Create(ctx, owner, validInput("PO-100"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, po.Status)
	assert.Equal(t, owner.ID, po.UserID)
	require.Len(t, po.Items, 2)
	assert.Equal(t, "1280.00", po.TotalAmount().StringFixed(2))
	require.NotNil(t, po.Items[0].MfgDate)
	assert.Nil(t, po.Items[1].ExpDate)

	_, err = svc.Create(ctx, owner, validInput("PO-100"))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateValidation(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, storage.NewMemoryStore())
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)

	in := Input{
		PODate:           "01-03-2024",
		InstitutionEmail: "not-an-email",
		Items: []ItemInput{
			{Price: decimal.NewFromInt(-1), Quantity: 0, MfgDate: "2024-05-01", ExpDate: "2024-04-01"},
		},
	}
	_, err := svc.Create(context.Background(), owner, in)
	var verr apperr.ValidationErrors
	require.ErrorAs(t, err, &verr)
	fields := verr.Fields()
	for _, f := range []string{
		"po_number", "po_date", "institution_name", "institution_email",
		"items.0.name", "items.0.price", "items.0.quantity", "items.0.exp_date",
	} {
		assert.Contains(t, fields, f)
	}

	_, err = svc.Create(context.Background(), owner, Input{PONumber: "X", PODate: "2024-01-01", InstitutionName: "Y"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "items")

	_, err = svc.Create(context.Background(), owner, Input{
		PONumber: "X", PODate: "2024-01-01", InstitutionName: "Y",
		Items: []ItemInput{
			{Name: "Gloves", Price: decimal.RequireFromString("12.50"), Quantity: 1},
			{Name: "Masks", Price: decimal.RequireFromString("1.005"), Quantity: 1},
		},
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "items.1.price")
	assert.NotContains(t, verr.Fields(), "items.0.price")
}

func TestUpdateItemRules(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, storage.NewMemoryStore())
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)
	_, other := testutil.CreateUser(t, db, "other", models.RoleUser)
	ctx := context.Background()

	po := testutil.CreateOrder(t, db, owner, "PO-1",
		testutil.ItemSpec{Name: "Gloves", Price: "1.00", Quantity: 10},
		testutil.ItemSpec{Name: "Masks", Price: "2.00", Quantity: 5},
	)
	gloves, masks := po.Items[0], po.Items[1]
	testutil.CreateSupply(t, db, owner, po, 6)

	base := func() Input {
		in := validInput("PO-1")
		in.Items = []ItemInput{
			{ID: gloves.ID, Name: "Gloves", Price: decimal.NewFromInt(1), Quantity: 10},
			{ID: masks.ID, Name: "Masks", Price: decimal.NewFromInt(2), Quantity: 5},
		}
		return in
	}

	_, err := svc.Update(ctx, other, po.ID, base())
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	in := base()
	in.Items[0].Quantity = 5
	_, err = svc.Update(ctx, owner, po.ID, in)
	var verr apperr.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "items.0.quantity")

	in = base()
	in.Items = in.Items[1:]
	_, err = svc.Update(ctx, owner, po.ID, in)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "items")

	in = base()
	in.Items[0].Quantity = 6
	in.Items = append(in.Items[:1], ItemInput{Name: "Caps", Price: decimal.NewFromInt(4), Quantity: 2})
	updated, err := svc.Update(ctx, owner, po.ID, in)
	require.NoError(t, err)
	require.Len(t, updated.Items, 2)
	assert.Equal(t, "Caps", updated.Items[1].Name)
	assert.Equal(t, models.OrderPartiallySupplied, updated.Status,
		"removing the unsupplied item still leaves Caps open")

	in.Items = in.Items[:1]
	updated, err = svc.Update(ctx, owner, po.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFullySupplied, updated.Status)

	dup := validInput("PO-2")
	_, err = svc.Create(ctx, owner, dup)
	require.NoError(t, err)
	in.PONumber = "PO-2"
	_, err = svc.Update(ctx, owner, po.ID, in)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	store := storage.NewMemoryStore()
	svc := NewService(db, store)
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)
	ctx := context.Background()

	po := testutil.CreateOrder(t, db, owner, "PO-1", testutil.ItemSpec{Name: "Gloves", Price: "1.00", Quantity: 10})
	sup := testutil.CreateSupply(t, db, owner, po, 3)
	ref, err := store.Put(ctx, "dc/DC-1-20240305.pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Supply{ID: sup.ID}).UpdateColumn("dc_pdf", ref).Error)
	require.NoError(t, db.Create(&models.Payment{SupplyID: sup.ID, ChequeNo: "C", Amount: decimal.NewFromInt(3), Status: models.PaymentPending}).Error)

	require.NoError(t, svc.Delete(ctx, owner, po.ID))

	for _, m := range []any{&models.PurchaseOrder{}, &models.POItem{}, &models.Supply{}, &models.SupplyItem{}, &models.Payment{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T left behind", m)
	}
	assert.Empty(t, store.Names())

	assert.ErrorIs(t, svc.Delete(ctx, owner, po.ID), apperr.ErrNotFound)
}

func TestListAndSupplyable(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, storage.NewMemoryStore())
	_, admin := testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)
	_, other := testutil.CreateUser(t, db, "other", models.RoleUser)
	ctx := context.Background()

	open := testutil.CreateOrder(t, db, owner, "PO-OPEN",
		testutil.ItemSpec{Name: "Gloves", Price: "1.00", Quantity: 4},
		testutil.ItemSpec{Name: "Masks", Price: "1.00", Quantity: 4})
	testutil.CreateSupply(t, db, owner, open, 4)
	require.NoError(t, db.Model(&models.PurchaseOrder{ID: open.ID}).UpdateColumn("status", models.OrderPartiallySupplied).Error)

	done := testutil.CreateOrder(t, db, owner, "PO-DONE", testutil.ItemSpec{Name: "Caps", Price: "1.00", Quantity: 1})
	testutil.CreateSupply(t, db, owner, done, 1)
	require.NoError(t, db.Model(&models.PurchaseOrder{ID: done.ID}).UpdateColumn("status", models.OrderFullySupplied).Error)

	testutil.CreateOrder(t, db, other, "PO-OTHER", testutil.ItemSpec{Name: "Tape", Price: "1.00", Quantity: 1})

	list, err := svc.Supplyable(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PO-OPEN", list[0].PONumber)
	require.Len(t, list[0].Items, 1)
	assert.Equal(t, "Masks", list[0].Items[0].Name)

	page, err := svc.List(ctx, owner, ListFilter{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = svc.List(ctx, admin, ListFilter{Page: 1, Search: "other"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "PO-OTHER", page.Data[0].PONumber)

	page, err = svc.List(ctx, admin, ListFilter{Page: 1, Status: models.OrderFullySupplied})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "PO-DONE", page.Data[0].PONumber)

	_, err = svc.Get(ctx, other, open.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSetImage(t *testing.T) {
	db := testutil.NewDB(t)
	store := storage.NewMemoryStore()
	svc := NewService(db, store)
	_, owner := testutil.CreateUser(t, db, "owner", models.RoleUser)
	ctx := context.Background()
	po := testutil.CreateOrder(t, db, owner, "PO-1", testutil.ItemSpec{Name: "Gloves", Price: "1.00", Quantity: 1})

	_, err := svc.SetImage(ctx, owner, po.ID, &storage.File{Name: "scan.pdf", Data: []byte("%PDF-1.4")})
	var verr apperr.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "po_image")

	jpeg := []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	first, err := svc.SetImage(ctx, owner, po.ID, &storage.File{Name: "scan.jpg", Data: jpeg})
	require.NoError(t, err)
	second, err := svc.SetImage(ctx, owner, po.ID, &storage.File{Name: "scan2.jpg", Data: jpeg})
	require.NoError(t, err)
	assert.Equal(t, []string{second.POImage}, store.Names())
	assert.NotEqual(t, first.POImage, second.POImage)

	ref, data, err := svc.Image(ctx, owner, po.ID)
	require.NoError(t, err)
	assert.Equal(t, second.POImage, ref)
	assert.Equal(t, jpeg, data)
}
