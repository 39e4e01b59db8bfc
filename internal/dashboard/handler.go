package dashboard

import (
	"procurement-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// GET /api/dashboard/stats
func StatsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		stats, err := svc.Stats(c.UserContext(), actor)
		if err != nil {
			return err
		}
		return c.JSON(stats)
	}
}

// GET /api/dashboard/supply-chart?period=daily&count=7
func SupplyChartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		count := c.QueryInt("count", 0)
		if count < 0 || count > 366 {
			return fiber.NewError(fiber.StatusBadRequest, "count must be between 1 and 366")
		}

		resp, err := svc.Chart(c.UserContext(), actor, c.Query("period", "daily"), count)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}
