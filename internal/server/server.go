package server

import (
	"strings"

	"procurement-backend/internal/audit"
	"procurement-backend/internal/auth"
	"procurement-backend/internal/dashboard"
	"procurement-backend/internal/models"
	"procurement-backend/internal/payment"
	"procurement-backend/internal/purchase"
	"procurement-backend/internal/supply"
	"procurement-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

type Deps struct {
	DB          *gorm.DB
	JWTSecret   string
	CORSOrigins string
	BodyLimitMB int
	AppName     string

	PurchaseOrders *purchase.Service
	Supplies       *supply.Service
	Payments       *payment.Service
	Users          *users.Service
	Dashboard      *dashboard.Service

	// DisableRequestLog turns off the access log, for tests.
	DisableRequestLog bool
}

func New(d Deps) *fiber.App {
	bodyLimit := d.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 12
	}
	app := fiber.New(fiber.Config{
		AppName:      d.AppName,
		BodyLimit:    bodyLimit << 20,
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if !d.DisableRequestLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}

	origins := strings.Split(d.CORSOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(origins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: "Content-Disposition",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// public auth
	api.Post("/auth/register-admin", auth.RegisterFirstAdminHandler(d.DB))
	api.Post("/auth/login", auth.LoginHandler(d.DB, d.JWTSecret))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(d.JWTSecret, d.DB))

	protected.Get("/auth/me", auth.MeHandler(d.DB))

	protected.Get("/dashboard/stats", dashboard.StatsHandler(d.Dashboard))
	protected.Get("/dashboard/supply-chart", dashboard.SupplyChartHandler(d.Dashboard))

	// purchase orders
	protected.Post("/purchase-orders/items-sheet", purchase.ParseItemsSheetHandler())
	protected.Get("/purchase-orders/supplyable", purchase.SupplyableHandler(d.PurchaseOrders))
	protected.Post("/purchase-orders", purchase.CreatePurchaseOrderHandler(d.PurchaseOrders))
	protected.Get("/purchase-orders", purchase.ListPurchaseOrdersHandler(d.PurchaseOrders))
	protected.Get("/purchase-orders/:id", purchase.GetPurchaseOrderHandler(d.PurchaseOrders))
	protected.Put("/purchase-orders/:id", purchase.UpdatePurchaseOrderHandler(d.PurchaseOrders))
	protected.Delete("/purchase-orders/:id", purchase.DeletePurchaseOrderHandler(d.PurchaseOrders))
	protected.Post("/purchase-orders/:id/image", purchase.UploadImageHandler(d.PurchaseOrders))
	protected.Get("/purchase-orders/:id/image", purchase.DownloadImageHandler(d.PurchaseOrders))

	// supplies
	protected.Post("/supplies", supply.CreateSupplyHandler(d.Supplies))
	protected.Get("/supplies", supply.ListSuppliesHandler(d.Supplies))
	protected.Get("/supplies/:id", supply.GetSupplyHandler(d.Supplies))
	protected.Delete("/supplies/:id", supply.DeleteSupplyHandler(d.Supplies))
	protected.Post("/supplies/:id/regenerate-documents", supply.RegenerateDocumentsHandler(d.Supplies))
	protected.Post("/supplies/:id/stamped", supply.UploadStampedHandler(d.Supplies))
	protected.Get("/supplies/:id/documents/:kind", supply.DownloadDocumentHandler(d.Supplies))

	// payments
	protected.Get("/payments/payable-supplies", payment.PayableSuppliesHandler(d.Payments))
	protected.Post("/payments", payment.CreatePaymentHandler(d.Payments))
	protected.Get("/payments", payment.ListPaymentsHandler(d.Payments))
	protected.Get("/payments/:id", payment.GetPaymentHandler(d.Payments))
	protected.Get("/payments/:id/cheque-image", payment.ChequeImageHandler(d.Payments))
	protected.Post("/payments/:id/confirm", payment.ConfirmPaymentHandler(d.Payments))
	protected.Post("/payments/:id/reject", payment.RejectPaymentHandler(d.Payments))

	// admin only
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Get("/users/summary", users.SummaryHandler(d.Users))
	adminRoutes.Post("/users", users.CreateUserHandler(d.Users))
	adminRoutes.Get("/users", users.ListUsersHandler(d.Users))
	adminRoutes.Get("/users/:id", users.GetUserHandler(d.Users))
	adminRoutes.Put("/users/:id", users.UpdateUserHandler(d.Users))
	adminRoutes.Delete("/users/:id", users.DeleteUserHandler(d.Users))

	adminRoutes.Get("/audit-logs", audit.ListAuditLogsHandler(d.DB))

	return app
}
