package controller

import (
	"io"
	"mime/multipart"

	"kb-assistant/internal/dto"
	"kb-assistant/internal/pkg/serverutils"
	"kb-assistant/internal/service"
	"kb-assistant/pkg/gateway"

	"github.com/gofiber/fiber/v2"
)

type IWorkflowController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	SelectFile(ctx *fiber.Ctx) error
	Next(ctx *fiber.Ctx) error
	UpdateParams(ctx *fiber.Ctx) error
	Step(ctx *fiber.Ctx) error
	Save(ctx *fiber.Ctx) error
	Confirm(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
}

type workflowController struct {
	service service.IWorkflowService
}

func NewWorkflowController(service service.IWorkflowService) IWorkflowController {
	return &workflowController{service: service}
}

func (c *workflowController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1/:id/workflow")
	h.Get("", c.Show)
	h.Delete("", c.Reset)
	h.Post("file", c.SelectFile)
	h.Post("next", c.Next)
	h.Put("params", c.UpdateParams)
	h.Post("step", c.Step)
	h.Post("save", c.Save)
	h.Post("confirm", c.Confirm)
}

func (c *workflowController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.Show(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show workflow", res))
}

func (c *workflowController) SelectFile(ctx *fiber.Ctx) error {
	header, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Missing form file 'file'")
	}
	file, err := readFormFile(header)
	if err != nil {
		return err
	}

	res, err := c.service.SelectFile(ctx.UserContext(), ctx.Params("id"), file)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success select file", res))
}

func (c *workflowController) Next(ctx *fiber.Ctx) error {
	res, err := c.service.Next(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return accepted(ctx, "Upload started", res)
}

func (c *workflowController) UpdateParams(ctx *fiber.Ctx) error {
	var req dto.UpdateParamsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdateParams(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update parameters", res))
}

func (c *workflowController) Step(ctx *fiber.Ctx) error {
	var req dto.StepParamRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Step(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success step parameter", res))
}

func (c *workflowController) Save(ctx *fiber.Ctx) error {
	res, err := c.service.Save(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return accepted(ctx, "Knowledge base creation started", res)
}

func (c *workflowController) Confirm(ctx *fiber.Ctx) error {
	res, err := c.service.Confirm(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success confirm workflow", res))
}

func (c *workflowController) Reset(ctx *fiber.Ctx) error {
	res, err := c.service.Reset(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success reset workflow", res))
}

func accepted[T any](ctx *fiber.Ctx, message string, data T) error {
	res := serverutils.SuccessResponse(message, data)
	res.Code = fiber.StatusAccepted
	return ctx.Status(fiber.StatusAccepted).JSON(res)
}

func readFormFile(header *multipart.FileHeader) (gateway.File, error) {
	f, err := header.Open()
	if err != nil {
		return gateway.File{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return gateway.File{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "text/markdown"
	}
	return gateway.File{Name: header.Filename, ContentType: contentType, Content: content}, nil
}
