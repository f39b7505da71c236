package controller

import (
	"kb-assistant/internal/dto"
	"kb-assistant/internal/pkg/serverutils"
	"kb-assistant/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
	ClearMessages(ctx *fiber.Ctx) error
	Recall(ctx *fiber.Ctx) error
	DeleteKnowledgeBase(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
}

func NewSessionController(service service.ISessionService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Delete(":id", c.Delete)
	h.Post(":id/chat", c.Chat)
	h.Delete(":id/messages", c.ClearMessages)
	h.Post(":id/recall", c.Recall)
	h.Delete(":id/knowledge-base", c.DeleteKnowledgeBase)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	res, err := c.service.Create(ctx.UserContext())
	if err != nil {
		return err
	}
	body := serverutils.SuccessResponse("Success create session", res)
	body.Code = fiber.StatusCreated
	return ctx.Status(fiber.StatusCreated).JSON(body)
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *sessionController) Delete(ctx *fiber.Ctx) error {
	if err := c.service.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *sessionController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *sessionController) ClearMessages(ctx *fiber.Ctx) error {
	if err := c.service.ClearMessages(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success clear messages", nil))
}

func (c *sessionController) Recall(ctx *fiber.Ctx) error {
	var req dto.RecallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.RunRecall(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success run recall test", res))
}

func (c *sessionController) DeleteKnowledgeBase(ctx *fiber.Ctx) error {
	if err := c.service.DeleteKnowledgeBase(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete knowledge base", nil))
}
