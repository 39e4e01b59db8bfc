package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"procurement-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres with a GORM logger writing through the standard log package.
func Open(dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table the application uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.PurchaseOrder{},
		&models.POItem{},
		&models.Supply{},
		&models.SupplyItem{},
		&models.Payment{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Init opens and migrates, exiting the process on failure.
func Init(dsn string) *gorm.DB {
	db, err := Open(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database connected, migrations applied.")
	return db
}

// ForUpdate adds a row lock to the next query. SQLite has no row locks and
// already serializes writers, so the clause is only added elsewhere.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockTable takes a self-conflicting table lock for the rest of tx so
// check-then-insert sequences cannot interleave. SQLite already allows a
// single writer, so nothing is issued there.
func LockTable(tx *gorm.DB, table string) error {
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", tx.Statement.Quote(table))).Error
}
