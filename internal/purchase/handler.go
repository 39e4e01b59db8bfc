package purchase

import (
	"net/http"
	"strings"
	"time"

	"procurement-backend/internal/auth"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type POItemResponse struct {
	ID                uint            `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	Supplied          int             `json:"supplied"`
	RemainingQuantity int             `json:"remaining_quantity"`
	BatchNo           string          `json:"batch_no"`
	MfgDate           *string         `json:"mfg_date"`
	ExpDate           *string         `json:"exp_date"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

type SupplySummary struct {
	ID          uint            `json:"id"`
	SupplyDate  string          `json:"supply_date"`
	UserName    string          `json:"user_name"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DCPDF       string          `json:"dc_pdf"`
	InvoicePDF  string          `json:"invoice_pdf"`
	Payments    int             `json:"payments"`
	Paid        bool            `json:"paid"`
}

type PurchaseOrderResponse struct {
	ID                 uint               `json:"id"`
	UserID             uint               `json:"user_id"`
	UserName           string             `json:"user_name"`
	PONumber           string             `json:"po_number"`
	PODate             string             `json:"po_date"`
	POImage            string             `json:"po_image"`
	InstitutionName    string             `json:"institution_name"`
	InstitutionEmail   string             `json:"institution_email"`
	InstitutionPhone   string             `json:"institution_phone"`
	InstitutionAddress string             `json:"institution_address"`
	Status             models.OrderStatus `json:"status"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	Items              []POItemResponse   `json:"items"`
	Supplies           []SupplySummary    `json:"supplies,omitempty"`
	CreatedAt          string             `json:"created_at"`
}

func optionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func toResponse(po *models.PurchaseOrder) PurchaseOrderResponse {
	items := make([]POItemResponse, 0, len(po.Items))
	for _, it := range po.Items {
		items = append(items, POItemResponse{
			ID:                it.ID,
			Name:              it.Name,
			Price:             it.Price,
			Quantity:          it.Quantity,
			Supplied:          it.Supplied,
			RemainingQuantity: it.RemainingQuantity(),
			BatchNo:           it.BatchNo,
			MfgDate:           optionalDate(it.MfgDate),
			ExpDate:           optionalDate(it.ExpDate),
			TotalAmount:       it.TotalAmount(),
		})
	}

	var supplies []SupplySummary
	for i := range po.Supplies {
		s := &po.Supplies[i]
		supplies = append(supplies, SupplySummary{
			ID:          s.ID,
			SupplyDate:  s.SupplyDate.Format(dateLayout),
			UserName:    s.User.Name,
			ItemCount:   len(s.Items),
			TotalAmount: s.TotalAmount(),
			DCPDF:       s.DCPDF,
			InvoicePDF:  s.InvoicePDF,
			Payments:    len(s.Payments),
			Paid:        s.HasConfirmedPayment(),
		})
	}

	return PurchaseOrderResponse{
		ID:                 po.ID,
		UserID:             po.UserID,
		UserName:           po.User.Name,
		PONumber:           po.PONumber,
		PODate:             po.PODate.Format(dateLayout),
		POImage:            po.POImage,
		InstitutionName:    po.InstitutionName,
		InstitutionEmail:   po.InstitutionEmail,
		InstitutionPhone:   po.InstitutionPhone,
		InstitutionAddress: po.InstitutionAddress,
		Status:             po.Status,
		TotalAmount:        po.TotalAmount(),
		Items:              items,
		Supplies:           supplies,
		CreatedAt:          po.CreatedAt.Format(time.RFC3339),
	}
}

// POST /api/purchase-orders
func CreatePurchaseOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		po, err := svc.Create(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(po))
	}
}

// GET /api/purchase-orders?page=1&status=Pending&search=abc
func ListPurchaseOrdersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		page, err := svc.List(c.UserContext(), actor, ListFilter{
			Page:   c.QueryInt("page", 1),
			Status: models.OrderStatus(c.Query("status")),
			Search: c.Query("search"),
		})
		if err != nil {
			return err
		}

		data := make([]PurchaseOrderResponse, 0, len(page.Data))
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

// GET /api/purchase-orders/supplyable
func SupplyableHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		rows, err := svc.Supplyable(c.UserContext(), actor)
		if err != nil {
			return err
		}
		resp := make([]PurchaseOrderResponse, 0, len(rows))
		for i := range rows {
			resp = append(resp, toResponse(&rows[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/purchase-orders/:id
func GetPurchaseOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		po, err := svc.Get(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(po))
	}
}

// PUT /api/purchase-orders/:id
func UpdatePurchaseOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		po, err := svc.Update(c.UserContext(), actor, uint(id), body)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(po))
	}
}

// DELETE /api/purchase-orders/:id
func DeletePurchaseOrderHandler(svc *Service) fiber.Handler {
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

// POST /api/purchase-orders/:id/image (multipart: po_image)
func UploadImageHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		fh, err := c.FormFile("po_image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "po_image file is required")
		}
		file, err := storage.FromMultipart(fh, maxImageSize)
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}

		po, err := svc.SetImage(c.UserContext(), actor, uint(id), file)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(po))
	}
}

// GET /api/purchase-orders/:id/image
func DownloadImageHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		_, data, err := svc.Image(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, http.DetectContentType(data))
		return c.Send(data)
	}
}

// POST /api/purchase-orders/items-sheet (multipart: file)
// Reads items from an .xlsx file for prefilling the order form.
func ParseItemsSheetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are accepted")
		}

		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not open upload")
		}
		defer f.Close()

		items, issues, err := ParseItemsSheet(f)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if issues == nil {
			issues = []SheetIssue{}
		}
		return c.JSON(fiber.Map{
			"items":  items,
			"issues": issues,
		})
	}
}
