package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ffp-admin/middleware"
	"ffp-admin/services"
)

type TransferRatioHandler struct {
	ratios *services.TransferRatioService
}

func NewTransferRatioHandler(ratios *services.TransferRatioService) *TransferRatioHandler {
	return &TransferRatioHandler{ratios: ratios}
}

func SetupTransferRatioRoutes(router fiber.Router, h *TransferRatioHandler) {
	router.Get("/transfer-ratios/:id", h.Get)
	router.Post("/transfer-ratios", h.Create)
	router.Put("/transfer-ratios/:id", h.Update)
	router.Delete("/transfer-ratios/:id", h.Delete)
}

func (h *TransferRatioHandler) Get(c *fiber.Ctx) error {
	ratio, err := h.ratios.Get(c.UserContext(), c.Params("id"), middleware.ActingUser(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, ratio)
}

func (h *TransferRatioHandler) Create(c *fiber.Ctx) error {
	owner, err := actingUser(c)
	if err != nil {
		return err
	}
	var in services.CreateTransferRatioInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	ratio, err := h.ratios.Create(c.UserContext(), in, owner)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, ratio)
}

func (h *TransferRatioHandler) Update(c *fiber.Ctx) error {
	owner, err := actingUser(c)
	if err != nil {
		return err
	}
	var in services.UpdateTransferRatioInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	ratio, err := h.ratios.Update(c.UserContext(), c.Params("id"), in, owner)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, ratio)
}

func (h *TransferRatioHandler) Delete(c *fiber.Ctx) error {
	if err := h.ratios.Archive(c.UserContext(), c.Params("id"), middleware.ActingUser(c)); err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{"id": c.Params("id"), "archived": true})
}
