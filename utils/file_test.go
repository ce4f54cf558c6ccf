package utils

import (
	"mime/multipart"
	"net/textproto"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(contentType string, size int64) *multipart.FileHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	return &multipart.FileHeader{Filename: "logo.png", Header: h, Size: size}
}

func TestCheckUpload(t *testing.T) {
	ct, err := CheckUpload(fileHeader("image/PNG", 1024))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	ct, err = CheckUpload(fileHeader("image/svg+xml; charset=utf-8", 10))
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", ct)

	_, err = CheckUpload(fileHeader("image/png", MaxUploadSize+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = CheckUpload(fileHeader("application/pdf", 10))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = CheckUpload(fileHeader("image/png", 0))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestObjectKey(t *testing.T) {
	uuidPattern := `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

	key := ObjectKey("Flying Blue Logo.PNG", "image/png")
	assert.Regexp(t, regexp.MustCompile(`^logos/flying-blue-logo-`+uuidPattern+`\.png$`), key)

	key = ObjectKey("avios", "image/webp")
	assert.Regexp(t, regexp.MustCompile(`^logos/avios-`+uuidPattern+`\.webp$`), key)

	key = ObjectKey("???.jpg", "image/jpeg")
	assert.Regexp(t, regexp.MustCompile(`^logos/logo-`+uuidPattern+`\.jpg$`), key)

	assert.NotEqual(t, ObjectKey("a.png", "image/png"), ObjectKey("a.png", "image/png"))
}

func TestValidObjectKey(t *testing.T) {
	assert.True(t, ValidObjectKey("logos/avios-1.png"))
	assert.False(t, ValidObjectKey("logos/"))
	assert.False(t, ValidObjectKey("secrets/key.pem"))
	assert.False(t, ValidObjectKey("logos/../secrets"))
	assert.False(t, ValidObjectKey(""))
}

func TestAllowedImageType(t *testing.T) {
	assert.True(t, AllowedImageType("image/jpeg"))
	assert.True(t, AllowedImageType("image/webp"))
	assert.False(t, AllowedImageType("image/gif"))
	assert.False(t, AllowedImageType(""))
}
