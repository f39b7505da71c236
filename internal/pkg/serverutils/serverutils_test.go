package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepRequest struct {
	Field     string `json:"field" validate:"required,oneof=chunkSize chunkOverlap topK"`
	Direction int    `json:"direction" validate:"required,oneof=-1 1"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(stepRequest{Field: "topK", Direction: -1}))

	err := ValidateRequest(stepRequest{Field: "temperature"})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Fields["field"], "must be one of")
	assert.Equal(t, "is required", vErr.Fields["direction"])
}

var errGone = errors.New("gone")

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(func(err error) (int, bool) {
		if errors.Is(err, errGone) {
			return fiber.StatusNotFound, true
		}
		return 0, false
	}))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.JSON(SuccessResponse("fine", 1)) })
	app.Get("/mapped", func(c *fiber.Ctx) error { return errGone })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big") })
	app.Get("/invalid", func(c *fiber.Ctx) error { return ValidateRequest(stepRequest{}) })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{"/ok", 200, "fine"},
		{"/mapped", 404, "gone"},
		{"/fiber", 413, "too big"},
		{"/invalid", 400, "Validation failed"},
		{"/boom", 500, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode(t, resp.Body)
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, tt.status == 200, body["success"])
		})
	}
}
