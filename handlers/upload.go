package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ffp-admin/apperrors"
	"ffp-admin/middleware"
	"ffp-admin/services"
	"ffp-admin/utils"
)

const maxPresignTTL = 7 * 24 * time.Hour

type UploadHandler struct {
	store    ObjectStore
	programs *services.ProgramService
	log      *zap.Logger
}

func NewUploadHandler(store ObjectStore, programs *services.ProgramService, log *zap.Logger) *UploadHandler {
	return &UploadHandler{store: store, programs: programs, log: log.Named("upload_http")}
}

func SetupUploadRoutes(router fiber.Router, h *UploadHandler) {
	router.Post("/upload", h.Upload)
	router.Get("/upload", h.Presign)
	router.Delete("/upload", h.Delete)
}

func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	if err := h.ready(c); err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.Validation("file is required", apperrors.Field("file", "is required"))
	}
	contentType, err := utils.CheckUpload(fh)
	if err != nil {
		return apperrors.Validation(err.Error(), apperrors.Field("file", err.Error()))
	}

	name := strings.TrimSpace(c.FormValue("file_name"))
	if name == "" {
		name = fh.Filename
	}
	key := utils.ObjectKey(name, contentType)

	f, err := fh.Open()
	if err != nil {
		return apperrors.Internal(err, "failed to read upload")
	}
	defer f.Close()

	if err := h.store.Upload(c.UserContext(), key, f, fh.Size, contentType); err != nil {
		return apperrors.Internal(err, "failed to store file")
	}
	h.log.Info("logo uploaded", zap.String("key", key), zap.Int64("size", fh.Size))
	return ok(c, fiber.StatusCreated, fiber.Map{"file_name": key})
}

// Presign returns a time-limited URL to view an object or to upload one
// directly from the browser.
func (h *UploadHandler) Presign(c *fiber.Ctx) error {
	if err := h.ready(c); err != nil {
		return err
	}
	key := c.Query("file_name")
	if !utils.ValidObjectKey(key) {
		return apperrors.Validation("invalid file_name", apperrors.Field("file_name", "must be a logo object key"))
	}
	ttl := time.Duration(c.QueryInt("expires_in", 0)) * time.Second
	if ttl < 0 || ttl > maxPresignTTL {
		return apperrors.Validation("invalid expires_in", apperrors.Field("expires_in", "must be between 0 and 604800 seconds"))
	}

	var (
		url string
		err error
	)
	switch action := c.Query("action", "view"); action {
	case "view":
		url, err = h.store.PresignGet(c.UserContext(), key, ttl)
	case "upload":
		contentType := c.Query("content_type")
		if !utils.AllowedImageType(contentType) {
			return apperrors.Validation("invalid content_type", apperrors.Field("content_type", utils.ErrUnsupportedImage.Error()))
		}
		url, err = h.store.PresignPut(c.UserContext(), key, contentType, ttl)
	default:
		return apperrors.Validation("invalid action", apperrors.Field("action", "must be one of view upload"))
	}
	if err != nil {
		return apperrors.Internal(err, "failed to presign url")
	}
	return ok(c, fiber.StatusOK, fiber.Map{"url": url, "file_name": key})
}

func (h *UploadHandler) Delete(c *fiber.Ctx) error {
	if err := h.ready(c); err != nil {
		return err
	}
	key := c.Query("file_name")
	if !utils.ValidObjectKey(key) {
		return apperrors.Validation("invalid file_name", apperrors.Field("file_name", "must be a logo object key"))
	}
	// a logo referenced by someone else's program is not the caller's to remove
	held, err := h.programs.AssetHeldByOthers(c.UserContext(), key, middleware.ActingUser(c))
	if err != nil {
		return err
	}
	if held {
		return apperrors.NotFound("file not found")
	}
	if err := h.store.Delete(c.UserContext(), key); err != nil {
		return apperrors.Internal(err, "failed to delete file")
	}
	h.log.Info("logo deleted", zap.String("key", key))
	return ok(c, fiber.StatusOK, fiber.Map{"file_name": key, "deleted": true})
}

// ready requires a session and configured storage.
func (h *UploadHandler) ready(c *fiber.Ctx) error {
	if middleware.ActingUser(c) == "" {
		return apperrors.Unauthorized("authentication required")
	}
	if h.store == nil {
		return apperrors.Internal(errors.New("object storage is not configured"), "storage unavailable")
	}
	return nil
}
