package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ffp-admin/middleware"
	"ffp-admin/models"
	"ffp-admin/services"
)

// ObjectStore is the object storage surface the HTTP layer needs.
// *utils.R2Storage implements it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

type ProgramHandler struct {
	programs *services.ProgramService
	store    ObjectStore
	log      *zap.Logger
}

func NewProgramHandler(programs *services.ProgramService, store ObjectStore, log *zap.Logger) *ProgramHandler {
	return &ProgramHandler{programs: programs, store: store, log: log.Named("programs_http")}
}

func SetupProgramRoutes(router fiber.Router, h *ProgramHandler) {
	router.Get("/programs", h.List)
	router.Get("/programs/stats", h.Stats)
	router.Get("/programs/:id", h.Get)
	router.Post("/programs", h.Create)
	router.Put("/programs/:id", h.Update)
	router.Patch("/programs/:id/enabled", h.Toggle)
	router.Delete("/programs/:id", h.Delete)
}

func (h *ProgramHandler) List(c *fiber.Ctx) error {
	owner, err := actingUser(c)
	if err != nil {
		return err
	}
	q := services.ListProgramsQuery{Page: 0, PageSize: services.DefaultPageSize}
	if err := c.QueryParser(&q); err != nil {
		return badRequest("invalid query parameters")
	}
	page, err := h.programs.ListPrograms(c.UserContext(), q, owner)
	if err != nil {
		return err
	}
	for i := range page.Programs {
		h.decorate(c.UserContext(), &page.Programs[i])
	}
	return ok(c, fiber.StatusOK, page)
}

func (h *ProgramHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.programs.Stats(c.UserContext(), middleware.ActingUser(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, stats)
}

func (h *ProgramHandler) Get(c *fiber.Ctx) error {
	program, err := h.programs.GetProgram(c.UserContext(), c.Params("id"), middleware.ActingUser(c))
	if err != nil {
		return err
	}
	return h.respond(c, fiber.StatusOK, program)
}

func (h *ProgramHandler) Create(c *fiber.Ctx) error {
	owner, err := actingUser(c)
	if err != nil {
		return err
	}
	var in services.CreateProgramInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	program, err := h.programs.CreateProgram(c.UserContext(), in, owner)
	if err != nil {
		return err
	}
	return h.respond(c, fiber.StatusCreated, program)
}

// toggleInput is the body of PATCH /programs/:id/enabled and of
// PUT /programs/:id?action=toggle.
type toggleInput struct {
	Enabled *bool  `json:"enabled"`
	Version *int64 `json:"version"`
}

// Update replaces a program, or only flips its enabled flag when called with
// action=toggle.
func (h *ProgramHandler) Update(c *fiber.Ctx) error {
	if c.Query("action") == "toggle" {
		return h.Toggle(c)
	}
	owner, err := actingUser(c)
	if err != nil {
		return err
	}
	var in services.UpdateProgramInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	program, err := h.programs.UpdateProgram(c.UserContext(), c.Params("id"), in, owner)
	if err != nil {
		return err
	}
	return h.respond(c, fiber.StatusOK, program)
}

func (h *ProgramHandler) Toggle(c *fiber.Ctx) error {
	owner, err := actingUser(c)
	if err != nil {
		return err
	}
	var in toggleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	program, err := h.programs.ToggleEnabled(c.UserContext(), c.Params("id"), in.Enabled, in.Version, owner)
	if err != nil {
		return err
	}
	return h.respond(c, fiber.StatusOK, program)
}

func (h *ProgramHandler) Delete(c *fiber.Ctx) error {
	if err := h.programs.DeleteProgram(c.UserContext(), c.Params("id"), middleware.ActingUser(c)); err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{"id": c.Params("id"), "archived": true})
}

func (h *ProgramHandler) respond(c *fiber.Ctx, status int, p *models.Program) error {
	h.decorate(c.UserContext(), p)
	return ok(c, status, p)
}

// decorate fills ImageURL. Storage failures are logged and never fail the
// request.
func (h *ProgramHandler) decorate(ctx context.Context, p *models.Program) {
	if h.store == nil || p.AssetName == "" {
		return
	}
	url, err := h.store.PresignGet(ctx, p.AssetName, 0)
	if err != nil {
		h.log.Warn("presign logo failed", zap.String("program_id", p.ID), zap.Error(err))
		return
	}
	p.ImageURL = url
}
