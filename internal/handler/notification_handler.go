package handler

import (
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/internal/pkg/serverutils"
	"kb-assistant/internal/service"
	internalWS "kb-assistant/internal/websocket"
	"kb-assistant/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"
)

type NotificationHandler struct {
	sessions  service.ISessionService
	publisher events.Publisher
	hub       *internalWS.Hub
	logger    logger.ILogger
}

func NewNotificationHandler(sessions service.ISessionService, pub events.Publisher, hub *internalWS.Hub, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		sessions:  sessions,
		publisher: pub,
		hub:       hub,
		logger:    log,
	}
}

// ServeWs streams the events of one session to the peer.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	// The hijacked connection outlives the request buffers
	sessionID := utils.CopyString(c.Params("id"))
	if _, err := h.sessions.Show(c.UserContext(), sessionID); err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(c *websocket.Conn) {
			h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID})
			internalWS.ServeWs(h.hub, c, sessionID)
			h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

type triggerRequest struct {
	Level   string `json:"level" validate:"omitempty,oneof=success error info"`
	Message string `json:"message" validate:"required,max=500"`
}

// DebugTriggerEvent pushes a notification to one session to exercise the delivery path.
func (h *NotificationHandler) DebugTriggerEvent(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if _, err := h.sessions.Show(c.UserContext(), sessionID); err != nil {
		return err
	}

	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if req.Level == "" {
		req.Level = string(events.LevelInfo)
	}

	evt := events.NewNotification(sessionID, events.Level(req.Level), req.Message)
	if err := h.publisher.Publish(c.UserContext(), evt); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse("Event published", evt.Data))
}

// Broadcast sends a notice to every connected session.
func (h *NotificationHandler) Broadcast(c *fiber.Ctx) error {
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if req.Level == "" {
		req.Level = string(events.LevelInfo)
	}

	evt := events.NewBroadcast(events.Level(req.Level), req.Message)
	if err := h.publisher.Publish(c.UserContext(), evt); err != nil {
		return err
	}
	return c.JSON(serverutils.SuccessResponse[any]("Broadcast queued", nil))
}

// RegisterRoutes registers the debug routes. The websocket route is mounted by the server outside /api.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	debug := router.Group("/debug")
	debug.Post("/session/:id/notification", h.DebugTriggerEvent)
	debug.Post("/broadcast", h.Broadcast)
}
