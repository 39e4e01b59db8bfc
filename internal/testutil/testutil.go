// Package testutil builds an in-memory database and fixtures for tests.
package testutil

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"procurement-backend/internal/access"
	"procurement-backend/internal/database"
	"procurement-backend/internal/document"
	"procurement-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the schema applied.
// A single connection keeps every statement on the same in-memory file.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user and returns it with the matching actor.
func CreateUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) (models.User, access.Actor) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	u := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s@example.com", name),
		PasswordHash: string(hash),
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u, access.Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

// ItemSpec describes one ordered line for CreateOrder.
type ItemSpec struct {
	Name     string
	Price    string
	Quantity int
}

// CreateOrder inserts a Pending purchase order owned by owner.
func CreateOrder(t *testing.T, db *gorm.DB, owner access.Actor, number string, items ...ItemSpec) models.PurchaseOrder {
	t.Helper()

	po := models.PurchaseOrder{
		UserID:           owner.ID,
		PONumber:         number,
		PODate:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InstitutionName:  "City Hospital",
		InstitutionEmail: "stores@cityhospital.example",
		InstitutionPhone: "042-111-222",
		Status:           models.OrderPending,
	}
	for _, it := range items {
		po.Items = append(po.Items, models.POItem{
			Name:     it.Name,
			Price:    decimal.RequireFromString(it.Price),
			Quantity: it.Quantity,
		})
	}
	require.NoError(t, db.Omit("User", "Supplies").Create(&po).Error)
	return po
}

// FailingRenderer always fails, to exercise the document failure path.
type FailingRenderer struct{}

var ErrRenderFailed = errors.New("renderer unavailable")

func (FailingRenderer) Render(*document.Document) ([]byte, error) {
	return nil, ErrRenderFailed
}

// StubRenderer returns a tiny PDF-looking payload naming the document.
type StubRenderer struct{}

func (StubRenderer) Render(doc *document.Document) ([]byte, error) {
	return []byte("%PDF-1.4\n% " + doc.Number + " " + doc.Total.StringFixed(2) + "\n%%EOF"), nil
}

// CreateSupply inserts a supply of qty units of the order's first item,
// bumping the item's supplied counter. No documents are generated.
func CreateSupply(t *testing.T, db *gorm.DB, owner access.Actor, po models.PurchaseOrder, qty int) models.Supply {
	t.Helper()
	require.NotEmpty(t, po.Items)

	s := models.Supply{
		PurchaseOrderID: po.ID,
		UserID:          owner.ID,
		SupplyDate:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Omit(clause.Associations).Create(&s).Error)

	item := models.SupplyItem{SupplyID: s.ID, POItemID: po.Items[0].ID, Quantity: qty}
	require.NoError(t, db.Omit(clause.Associations).Create(&item).Error)
	require.NoError(t, db.Model(&models.POItem{}).Where("id = ?", item.POItemID).
		UpdateColumn("supplied", gorm.Expr("supplied + ?", qty)).Error)

	s.Items = []models.SupplyItem{item}
	return s
}
