package payment

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"procurement-backend/internal/auth"
	"procurement-backend/internal/models"
	"procurement-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type PaymentResponse struct {
	ID              uint                 `json:"id"`
	SupplyID        uint                 `json:"supply_id"`
	PONumber        string               `json:"po_number"`
	InstitutionName string               `json:"institution_name"`
	SuppliedBy      string               `json:"supplied_by"`
	SupplyTotal     decimal.Decimal      `json:"supply_total"`
	ChequeNo        string               `json:"cheque_no"`
	Amount          decimal.Decimal      `json:"amount"`
	ChequeImage     string               `json:"cheque_image"`
	Status          models.PaymentStatus `json:"status"`
	CreatedAt       string               `json:"created_at"`
}

func toResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID,
		SupplyID:        p.SupplyID,
		PONumber:        p.Supply.PurchaseOrder.PONumber,
		InstitutionName: p.Supply.PurchaseOrder.InstitutionName,
		SuppliedBy:      p.Supply.User.Name,
		SupplyTotal:     p.Supply.TotalAmount(),
		ChequeNo:        p.ChequeNo,
		Amount:          p.Amount,
		ChequeImage:     p.ChequeImage,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

// POST /api/payments
// Accepts JSON, or multipart with an optional cheque_image file.
func CreatePaymentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var in CreateInput
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			in, err = parseMultipart(c)
			if err != nil {
				return err
			}
		} else if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		p, err := svc.Create(c.UserContext(), actor, in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(p))
	}
}

func parseMultipart(c *fiber.Ctx) (CreateInput, error) {
	var in CreateInput
	if v := strings.TrimSpace(c.FormValue("supply_id")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return in, fiber.NewError(fiber.StatusBadRequest, "supply_id must be a number")
		}
		in.SupplyID = uint(id)
	}
	in.ChequeNo = c.FormValue("cheque_no")
	if v := strings.TrimSpace(c.FormValue("amount")); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return in, fiber.NewError(fiber.StatusBadRequest, "amount must be a number")
		}
		in.Amount = amount
	}

	if fh, err := c.FormFile("cheque_image"); err == nil {
		f, err := storage.FromMultipart(fh, maxChequeImageSize)
		if err != nil {
			return in, fiber.NewError(fiber.StatusUnprocessableEntity, "cheque image must not exceed 2MB")
		}
		in.ChequeImage = f
	}
	return in, nil
}

// GET /api/payments?page=1&status=Pending
func ListPaymentsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		page, err := svc.List(c.UserContext(), actor, ListFilter{
			Page:   c.QueryInt("page", 1),
			Status: models.PaymentStatus(c.Query("status")),
		})
		if err != nil {
			return err
		}

		data := make([]PaymentResponse, 0, len(page.Data))
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

// GET /api/payments/payable-supplies
func PayableSuppliesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		rows, err := svc.Payable(c.UserContext(), actor)
		if err != nil {
			return err
		}

		type payable struct {
			ID              uint            `json:"id"`
			PONumber        string          `json:"po_number"`
			InstitutionName string          `json:"institution_name"`
			SupplyDate      string          `json:"supply_date"`
			TotalAmount     decimal.Decimal `json:"total_amount"`
			PendingPayments int             `json:"pending_payments"`
		}
		resp := make([]payable, 0, len(rows))
		for i := range rows {
			s := &rows[i]
			resp = append(resp, payable{
				ID:              s.ID,
				PONumber:        s.PurchaseOrder.PONumber,
				InstitutionName: s.PurchaseOrder.InstitutionName,
				SupplyDate:      s.SupplyDate.Format("2006-01-02"),
				TotalAmount:     s.TotalAmount(),
				PendingPayments: len(s.Payments),
			})
		}
		return c.JSON(resp)
	}
}

// GET /api/payments/:id
func GetPaymentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		p, err := svc.Get(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// GET /api/payments/:id/cheque-image
func ChequeImageHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		_, data, err := svc.ChequeImage(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, http.DetectContentType(data))
		return c.Send(data)
	}
}

// POST /api/payments/:id/confirm
func ConfirmPaymentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		p, err := svc.Confirm(c.UserContext(), actor, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// POST /api/payments/:id/reject
func RejectPaymentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid id")
		}

		if err := svc.Reject(c.UserContext(), actor, uint(id)); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "payment rejected and removed"})
	}
}
