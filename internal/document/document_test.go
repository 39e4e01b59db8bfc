package document

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"procurement-backend/internal/apperr"
	"procurement-backend/internal/database"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func sampleSupply() *models.Supply {
	mfg := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	return &models.Supply{
		ID:         42,
		SupplyDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		User:       models.User{Name: "Ayesha"},
		PurchaseOrder: models.PurchaseOrder{
			PONumber:        "PO-77",
			PODate:          time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			InstitutionName: "City Hospital",
		},
		Items: []models.SupplyItem{
			{Quantity: 3, POItem: models.POItem{Name: "Gloves", Price: decimal.RequireFromString("10.10"), BatchNo: "B-1", MfgDate: &mfg}},
			{Quantity: 7, POItem: models.POItem{Name: "Masks", Price: decimal.RequireFromString("0.33")}},
		},
	}
}

func TestNumbersUseSupplyDate(t *testing.T) {
	s := sampleSupply()
	assert.Equal(t, "DC-42-20240305", ChallanNumber(s))
	assert.Equal(t, "INV-42-20240305", InvoiceNumber(s))
}

func TestInvoiceTotalsToTheCent(t *testing.T) {
	doc := Invoice(sampleSupply(), Options{Issuer: "Procurement"})

	require.Len(t, doc.Lines, 2)
	assert.Equal(t, "30.30", doc.Lines[0].Total.StringFixed(2))
	assert.Equal(t, "2.31", doc.Lines[1].Total.StringFixed(2))
	assert.Equal(t, "32.61", doc.Subtotal.StringFixed(2))
	assert.True(t, doc.Tax.IsZero())
	assert.Equal(t, "32.61", doc.Total.StringFixed(2))
	assert.Equal(t, "PKR", doc.Currency)
	assert.Equal(t, "Bill To", doc.PartyTitle)
	assert.Equal(t, "City Hospital", doc.Party.Name)
	assert.Equal(t, []string{"Customer Signature", "Authorized Signatory"}, doc.Signatures)
}

func TestInvoiceTotalsMatchPrintedAmounts(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 42))
	printed := func(d decimal.Decimal) decimal.Decimal {
		s := strings.ReplaceAll(strings.TrimPrefix(FormatMoney("PKR", d), "PKR "), ",", "")
		return decimal.RequireFromString(s)
	}

	for round := 0; round < 200; round++ {
		var (
			items     []models.SupplyItem
			wantCents int64
		)
		for n := 1 + rng.IntN(12); n > 0; n-- {
			cents := rng.Int64N(1_000_000)
			qty := 1 + rng.IntN(500)
			items = append(items, models.SupplyItem{
				Quantity: qty,
				POItem:   models.POItem{Name: "Item", Price: decimal.New(cents, -2)},
			})
			wantCents += cents * int64(qty)
		}
		s := sampleSupply()
		s.Items = items

		doc := Invoice(s, Options{})
		want := decimal.New(wantCents, -2)

		sumLines, sumPrinted := decimal.Zero, decimal.Zero
		for _, l := range doc.Lines {
			sumLines = sumLines.Add(l.Total)
			sumPrinted = sumPrinted.Add(printed(l.Total))
		}
		require.True(t, want.Equal(sumLines), "round %d: lines %s, want %s", round, sumLines, want)
		require.True(t, want.Equal(doc.Subtotal), "round %d", round)
		require.True(t, want.Equal(doc.Total), "round %d", round)
		require.True(t, sumPrinted.Equal(printed(doc.Total)), "round %d: printed lines %s, printed total %s", round, sumPrinted, FormatMoney("PKR", doc.Total))
	}
}

func TestChallanLines(t *testing.T) {
	doc := Challan(sampleSupply(), Options{Currency: "USD"})

	assert.Equal(t, KindChallan, doc.Kind)
	assert.Equal(t, "USD", doc.Currency)
	assert.Equal(t, "Delivery To", doc.PartyTitle)
	assert.Len(t, doc.Terms, 3)

	first, second := doc.Lines[0], doc.Lines[1]
	assert.Equal(t, 1, first.No)
	assert.Equal(t, "B-1", first.BatchNo)
	assert.Equal(t, "10/01/2024", first.MfgDate)
	assert.Equal(t, "-", first.ExpDate)
	assert.Equal(t, "-", second.BatchNo)
	assert.Contains(t, doc.Info, Field{"Supplied By", "Ayesha"})
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":          "PKR 0.00",
		"5.5":        "PKR 5.50",
		"999.999":    "PKR 1,000.00",
		"1234.5":     "PKR 1,234.50",
		"1234567.89": "PKR 1,234,567.89",
		"-2500":      "PKR -2,500.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMoney("PKR", decimal.RequireFromString(in)), in)
	}
	assert.Equal(t, "12.00", FormatMoney("", decimal.NewFromInt(12)))
}

func TestPDFRendererProducesPDF(t *testing.T) {
	r := NewPDFRenderer()
	for _, doc := range []*Document{Challan(sampleSupply(), Options{}), Invoice(sampleSupply(), Options{})} {
		out, err := r.Render(doc)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), doc.Title)
	}
}

func TestArtifactNames(t *testing.T) {
	dc, inv := ArtifactNames(7, time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, "dc/DC-7-20241231.pdf", dc)
	assert.Equal(t, "invoices/INV-7-20241231.pdf", inv)
}

type failingStore struct {
	storage.Store
	failOn string
}

var errDiskFull = errors.New("disk full")

func (s failingStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if name == s.failOn {
		return "", errDiskFull
	}
	return s.Store.Put(ctx, name, data)
}

type stubRenderer struct{}

func (stubRenderer) Render(doc *Document) ([]byte, error) {
	return []byte("%PDF-1.4 " + doc.Number), nil
}

func TestGenerateStoreFailureRecordsNothing(t *testing.T) {
	db := newDB(t)
	s := seedSupply(t, db)

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	_, invName := ArtifactNames(s.ID, now)
	mem := storage.NewMemoryStore()
	gen := NewGenerator(db, failingStore{Store: mem, failOn: invName}, stubRenderer{}, Options{}).
		WithClock(func() time.Time { return now })

	_, err := gen.Generate(context.Background(), s.ID)
	var artErr *apperr.ArtifactError
	require.ErrorAs(t, err, &artErr)
	assert.Equal(t, "store", artErr.Op)
	assert.ErrorIs(t, err, errDiskFull)

	var stored models.Supply
	require.NoError(t, db.First(&stored, s.ID).Error)
	assert.Empty(t, stored.DCPDF)
	assert.Empty(t, stored.InvoicePDF)
	assert.Empty(t, mem.Names(), "challan stored before the failure must be discarded")

	ok := NewGenerator(db, mem, stubRenderer{}, Options{}).WithClock(func() time.Time { return now })
	got, err := ok.Generate(context.Background(), s.ID)
	require.NoError(t, err)
	dcName, _ := ArtifactNames(s.ID, now)
	assert.Equal(t, dcName, got.DCPDF)
	assert.Equal(t, invName, got.InvoicePDF)

	data, err := mem.Get(context.Background(), got.InvoicePDF)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 "+InvoiceNumber(got), string(data))
}

func TestGenerateUnknownSupply(t *testing.T) {
	db := newDB(t)
	gen := NewGenerator(db, storage.NewMemoryStore(), stubRenderer{}, Options{})
	_, err := gen.Generate(context.Background(), 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func seedSupply(t *testing.T, db *gorm.DB) *models.Supply {
	t.Helper()
	u := models.User{Name: "Ayesha", Email: "ayesha@example.com", PasswordHash: "x", Role: models.RoleUser}
	require.NoError(t, db.Create(&u).Error)
	po := models.PurchaseOrder{
		UserID: u.ID, PONumber: "PO-1", PODate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InstitutionName: "City Hospital", Status: models.OrderPending,
		Items: []models.POItem{{Name: "Gloves", Price: decimal.RequireFromString("2.50"), Quantity: 4}},
	}
	require.NoError(t, db.Omit("User", "Supplies").Create(&po).Error)
	s := models.Supply{PurchaseOrderID: po.ID, UserID: u.ID, SupplyDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.Omit("PurchaseOrder", "User", "Items", "Payments").Create(&s).Error)
	require.NoError(t, db.Omit("POItem").Create(&models.SupplyItem{SupplyID: s.ID, POItemID: po.Items[0].ID, Quantity: 2}).Error)
	return &s
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}
