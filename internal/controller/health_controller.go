package controller

import (
	"kb-assistant/internal/pkg/serverutils"
	"kb-assistant/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Backend(ctx *fiber.Ctx) error
}

type healthController struct {
	service service.IHealthService
}

func NewHealthController(service service.IHealthService) IHealthController {
	return &healthController{service: service}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/backend/health", c.Backend)
}

// Backend reports 503 with the probe details when the RAG backend is unreachable
func (c *healthController) Backend(ctx *fiber.Ctx) error {
	res := c.service.CheckBackend(ctx.UserContext())
	if !res.Healthy {
		return ctx.Status(fiber.StatusServiceUnavailable).
			JSON(serverutils.ErrorResponseWithData(fiber.StatusServiceUnavailable, "Backend unavailable", res))
	}
	return ctx.JSON(serverutils.SuccessResponse("Backend healthy", res))
}
