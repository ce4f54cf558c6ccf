package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ffp-admin/middleware"
	"ffp-admin/services"
)

type CreditCardHandler struct {
	cards *services.CreditCardService
}

func NewCreditCardHandler(cards *services.CreditCardService) *CreditCardHandler {
	return &CreditCardHandler{cards: cards}
}

func SetupCreditCardRoutes(router fiber.Router, h *CreditCardHandler) {
	router.Get("/credit-cards", h.List)
}

func (h *CreditCardHandler) List(c *fiber.Ctx) error {
	cards, err := h.cards.List(c.UserContext(), middleware.ActingUser(c), c.QueryBool("include_ratios", false))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, cards)
}
