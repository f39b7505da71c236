package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// StatusMapper claims domain errors it knows a status for
type StatusMapper func(err error) (status int, ok bool)

// ErrorHandlerMiddleware turns errors returned by handlers into the response envelope.
// Mappers are tried in order; unclaimed errors become 500.
func ErrorHandlerMiddleware(mappers ...StatusMapper) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return ctx.Status(fiber.StatusBadRequest).
				JSON(ErrorResponseWithData(fiber.StatusBadRequest, "Validation failed", validationErr.Fields))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		}

		for _, mapper := range mappers {
			if status, ok := mapper(err); ok {
				return ctx.Status(status).JSON(ErrorResponse(status, err.Error()))
			}
		}

		return ctx.Status(fiber.StatusInternalServerError).
			JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
	}
}
