package handlers

import (
	"github.com/gofiber/fiber/v2"

	"ffp-admin/middleware"
	"ffp-admin/services"
)

type AuthHandler struct {
	auth         *services.AuthService
	secureCookie bool
}

func NewAuthHandler(auth *services.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookie: secureCookie}
}

func SetupAuthRoutes(router fiber.Router, h *AuthHandler) {
	router.Post("/auth/register", h.Register)
	router.Get("/auth/register", h.EmailAvailable)
	router.Post("/auth/signin", h.SignIn)
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var in services.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	user, err := h.auth.Register(c.UserContext(), in)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, fiber.Map{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

func (h *AuthHandler) EmailAvailable(c *fiber.Ctx) error {
	out, err := h.auth.EmailAvailable(c.UserContext(), c.Query("email"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, out)
}

// SignIn returns the session token and also sets it as an HTTP-only cookie
// for browser clients.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var in services.SignInInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	out, err := h.auth.SignIn(c.UserContext(), in)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    out.Token,
		Expires:  out.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return ok(c, fiber.StatusOK, out)
}
