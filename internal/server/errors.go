package server

import (
	"errors"

	"kb-assistant/internal/pkg/serverutils"
	"kb-assistant/internal/service"
	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/rag/chat"
	"kb-assistant/pkg/rag/recall"
	"kb-assistant/pkg/rag/session"
	"kb-assistant/pkg/rag/workflow"

	"github.com/gofiber/fiber/v2"
)

// statusMappers translate domain errors into HTTP statuses; anything unmatched becomes 500
var statusMappers = []serverutils.StatusMapper{
	sentinelStatus(session.ErrSessionNotFound, fiber.StatusNotFound),
	sentinelStatus(recall.ErrNoKnowledgeBase, fiber.StatusPreconditionFailed),
	sentinelStatus(chat.ErrEmptyMessage, fiber.StatusBadRequest),
	sentinelStatus(recall.ErrEmptyQuery, fiber.StatusBadRequest),
	sentinelStatus(service.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge),
	sentinelStatus(workflow.ErrSuperseded, fiber.StatusConflict),
	sentinelStatus(recall.ErrKnowledgeBaseChanged, fiber.StatusConflict),
	workflowStatus,
	gatewayStatus,
}

func sentinelStatus(target error, status int) serverutils.StatusMapper {
	return func(err error) (int, bool) {
		if errors.Is(err, target) {
			return status, true
		}
		return 0, false
	}
}

func workflowStatus(err error) (int, bool) {
	if workflow.IsTransitionError(err) {
		return fiber.StatusConflict, true
	}
	return 0, false
}

func gatewayStatus(err error) (int, bool) {
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		return 0, false
	}
	if gwErr.Timeout() {
		return fiber.StatusGatewayTimeout, true
	}
	return fiber.StatusBadGateway, true
}
