package supply

import (
	"path"
	"time"

	"procurement-backend/internal/auth"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type SupplyItemResponse struct {
	ID          uint            `json:"id"`
	POItemID    uint            `json:"po_item_id"`
	Name        string          `json:"name"`
	BatchNo     string          `json:"batch_no"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PaymentSummary struct {
	ID       uint                 `json:"id"`
	ChequeNo string               `json:"cheque_no"`
	Amount   decimal.Decimal      `json:"amount"`
	Status   models.PaymentStatus `json:"status"`
}

type SupplyResponse struct {
	ID               uint                 `json:"id"`
	PurchaseOrderID  uint                 `json:"purchase_order_id"`
	PONumber         string               `json:"po_number"`
	InstitutionName  string               `json:"institution_name"`
	UserID           uint                 `json:"user_id"`
	UserName         string               `json:"user_name"`
	SupplyDate       string               `json:"supply_date"`
	DCPDF            string               `json:"dc_pdf"`
	InvoicePDF       string               `json:"invoice_pdf"`
	DCStamped        string               `json:"dc_stamped"`
	InvoiceStamped   string               `json:"invoice_stamped"`
	TotalAmount      decimal.Decimal      `json:"total_amount"`
	HasConfirmedPaid bool                 `json:"has_confirmed_payment"`
	Items            []SupplyItemResponse `json:"items"`
	Payments         []PaymentSummary     `json:"payments"`
	CreatedAt        string               `json:"created_at"`
}

func toResponse(s *models.Supply) SupplyResponse {
	items := make([]SupplyItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, SupplyItemResponse{
			ID:          it.ID,
			POItemID:    it.POItemID,
			Name:        it.POItem.Name,
			BatchNo:     it.POItem.BatchNo,
			Quantity:    it.Quantity,
			Price:       it.POItem.Price,
			TotalAmount: it.TotalAmount(),
		})
	}
	payments := make([]PaymentSummary, 0, len(s.Payments))
	for _, p := range s.Payments {
		payments = append(payments, PaymentSummary{ID: p.ID, ChequeNo: p.ChequeNo, Amount: p.Amount, Status: p.Status})
	}

	return SupplyResponse{
		ID:               s.ID,
		PurchaseOrderID:  s.PurchaseOrderID,
		PONumber:         s.PurchaseOrder.PONumber,
		InstitutionName:  s.PurchaseOrder.InstitutionName,
		UserID:           s.UserID,
		UserName:         s.User.Name,
		SupplyDate:       s.SupplyDate.Format(dateLayout),
		DCPDF:            s.DCPDF,
		InvoicePDF:       s.InvoicePDF,
		DCStamped:        s.DCStamped,
		InvoiceStamped:   s.InvoiceStamped,
		TotalAmount:      s.TotalAmount(),
		HasConfirmedPaid: s.HasConfirmedPayment(),
		Items:            items,
		Payments:         payments,
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
	}
}

// POST /api/supplies
func CreateSupplyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body CreateInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		sup, err := svc.Create(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(sup))
	}
}

// GET /api/supplies?page=1
func ListSuppliesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		page, err := svc.List(c.UserContext(), actor, c.QueryInt("page", 1))
		if err != nil {
			return err
		}

		data := make([]SupplyResponse, 0, len(page.Data))
		for i := range page.Data {
			data = append(data, toResponse(&page.Data[i]))
		}
		return c.JSON(fiber.Map{
			"data":      data,
			"total":     page.Total,
			"page":      page.Page,
			"per_page":  page.PerPage,
			"last_page": page.LastPage,
		})
	}
}

// GET /api/supplies/:id
func GetSupplyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		sup, err := svc.Get(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(sup))
	}
}

// DELETE /api/supplies/:id
func DeleteSupplyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		if err := svc.Delete(c.UserContext(), actor, uint(id)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/supplies/:id/regenerate-documents
func RegenerateDocumentsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		sup, err := svc.RegenerateDocuments(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(sup))
	}
}

// POST /api/supplies/:id/stamped (multipart: dc_stamped, invoice_stamped)
func UploadStampedHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		dc, err := formPDF(c, "dc_stamped")
		if err != nil {
			return err
		}
		inv, err := formPDF(c, "invoice_stamped")
		if err != nil {
			return err
		}

		sup, err := svc.UploadStamped(c.UserContext(), actor, uint(id), dc, inv)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(sup))
	}
}

func formPDF(c *fiber.Ctx, field string) (*storage.File, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		// field absent
		return nil, nil
	}
	f, err := storage.FromMultipart(fh, maxStampedSize)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return f, nil
}

// GET /api/supplies/:id/documents/:kind  (dc, invoice, dc-stamped, invoice-stamped)
func DownloadDocumentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		ref, data, err := svc.Document(c.UserContext(), actor, uint(id), DocumentKind(c.Params("kind")))
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Attachment(path.Base(ref))
		return c.Send(data)
	}
}
