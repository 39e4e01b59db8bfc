package server

import (
	"procurement-backend/internal/config"
	"procurement-backend/internal/dashboard"
	"procurement-backend/internal/document"
	"procurement-backend/internal/payment"
	"procurement-backend/internal/purchase"
	"procurement-backend/internal/storage"
	"procurement-backend/internal/supply"
	"procurement-backend/internal/users"

	"gorm.io/gorm"
)

// Wire builds every service over db and store using cfg.
func Wire(cfg *config.Config, db *gorm.DB, store storage.Store) Deps {
	docs := document.NewGenerator(db, store, document.NewPDFRenderer(), document.Options{
		Issuer:   cfg.AppName,
		Currency: cfg.DocumentCurrency,
	})

	return Deps{
		DB:          db,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		BodyLimitMB: cfg.BodyLimitMB,
		AppName:     cfg.AppName,

		PurchaseOrders: purchase.NewService(db, store),
		Supplies:       supply.NewService(db, docs, store),
		Payments:       payment.NewService(db, store),
		Users:          users.NewService(db),
		Dashboard:      dashboard.NewService(db),
	}
}
