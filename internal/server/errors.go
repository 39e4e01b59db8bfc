package server

import (
	"errors"
	"log"

	"procurement-backend/internal/apperr"
	"procurement-backend/internal/supply"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler turns service errors into JSON responses:
// {"error": "...", "code": "...", "fields": {...}}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fe.Message,
			"code":  codeForStatus(fe.Code),
		})
	}

	var verr apperr.ValidationErrors
	if errors.As(err, &verr) {
		body := fiber.Map{
			"error":  verr.Error(),
			"code":   "validation_failed",
			"fields": verr.Fields(),
		}
		var capErr *supply.CapacityError
		if errors.As(err, &capErr) {
			body["item_id"] = capErr.ItemID
			body["available"] = capErr.Remaining
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
	}

	var artErr *apperr.ArtifactError
	if errors.As(err, &artErr) {
		log.Printf("[WARN] %v", artErr)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "documents could not be generated, retry later",
			"code":      "artifact_failed",
			"supply_id": artErr.SupplyID,
			"retryable": artErr.Retryable(),
		})
	}

	switch {
	case errors.Is(err, apperr.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error(), "code": "forbidden"})
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, apperr.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": "conflict"})
	}

	log.Println("Unexpected error:", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "unexpected server error",
		"code":  "internal",
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusRequestEntityTooLarge:
		return "too_large"
	case fiber.StatusUnprocessableEntity:
		return "validation_failed"
	}
	if status >= 500 {
		return "internal"
	}
	return "error"
}
