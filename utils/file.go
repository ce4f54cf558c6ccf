package utils

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	MaxUploadSize = 5 << 20
	logoPrefix    = "logos/"
)

var (
	ErrFileTooLarge     = errors.New("file exceeds the 5 MB limit")
	ErrUnsupportedImage = errors.New("only jpeg, png, svg and webp images are allowed")
	ErrEmptyFile        = errors.New("file is empty")
)

// imageTypes maps accepted content types to the extension used in object keys.
var imageTypes = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// AllowedImageType reports whether contentType may be stored as a logo.
func AllowedImageType(contentType string) bool {
	_, ok := imageTypes[normalizeContentType(contentType)]
	return ok
}

// CheckUpload validates an uploaded logo and returns its content type.
func CheckUpload(fh *multipart.FileHeader) (string, error) {
	if fh.Size <= 0 {
		return "", ErrEmptyFile
	}
	if fh.Size > MaxUploadSize {
		return "", ErrFileTooLarge
	}
	ct := normalizeContentType(fh.Header.Get("Content-Type"))
	if _, ok := imageTypes[ct]; !ok {
		return "", ErrUnsupportedImage
	}
	return ct, nil
}

// ObjectKey builds "logos/<slug>-<uuid><ext>" from a client file name. The
// extension comes from the content type when the name has none.
func ObjectKey(fileName, contentType string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if ext == "" {
		ext = imageTypes[normalizeContentType(contentType)]
	}
	name := slug.Make(base)
	if name == "" {
		name = "logo"
	}
	return fmt.Sprintf("%s%s-%s%s", logoPrefix, name, uuid.NewString(), ext)
}

// ValidObjectKey rejects keys outside the logo prefix or with path tricks.
func ValidObjectKey(key string) bool {
	return strings.HasPrefix(key, logoPrefix) &&
		len(key) > len(logoPrefix) &&
		!strings.Contains(key, "..") &&
		!strings.Contains(key, "//")
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
