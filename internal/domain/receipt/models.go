package receipt

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"fintrack/internal/domain/expense"
	"fintrack/internal/shared/apperr"
)

// DefaultMaxBytes bounds a single receipt payload.
const DefaultMaxBytes int64 = 10 << 20

// ObjectStore writes opaque payloads under a key and returns a durable
// reference from which they can be retrieved.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type UploadParams struct {
	OwnerID     string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (p *UploadParams) Validate(maxBytes int64) error {
	if expense.IsPlaceholderOwner(p.OwnerID) {
		return apperr.Validation("ownerId is required")
	}
	if p.Body == nil || p.Size <= 0 {
		return apperr.Validation("receipt file is empty")
	}
	if maxBytes > 0 && p.Size > maxBytes {
		return apperr.Validationf("receipt file exceeds %d bytes", maxBytes)
	}
	return nil
}

// Upload describes a stored receipt.
type Upload struct {
	Key         string `json:"key"`
	Ref         string `json:"receiptRef"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// IsAllowedContentType accepts images and PDFs.
func IsAllowedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "image/") || ct == "application/pdf"
}

var extensionsByType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
}

// extension returns a safe lowercase extension for the stored object.
func extension(fileName, contentType string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	var b strings.Builder
	for _, r := range ext {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	ext = b.String()
	if len(ext) > 1 && len(ext) <= 10 {
		return ext
	}
	return extensionsByType[strings.ToLower(contentType)]
}
