package receipt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fintrack/internal/shared/apperr"
)

var (
	receiptMeter   = otel.Meter("fintrack/receipts")
	uploadTotal, _ = receiptMeter.Int64Counter("receipts.upload.total", metric.WithDescription("Receipt uploads by outcome"))
	uploadBytes, _ = receiptMeter.Int64Histogram("receipts.upload.bytes", metric.WithDescription("Receipt payload size"), metric.WithUnit("By"))
)

type Config struct {
	// Prefix is the namespace every key is written under, e.g. "receipts".
	Prefix   string
	MaxBytes int64
}

// Service stores receipt payloads. It never reads or writes expense records;
// attaching the returned reference is a separate expense update.
type Service struct {
	store    ObjectStore
	prefix   string
	maxBytes int64
	now      func() time.Time
	newID    func() string
}

func NewService(store ObjectStore, cfg Config) *Service {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		store:    store,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		maxBytes: maxBytes,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload validates the payload, derives a collision-free key and writes it.
func (s *Service) Upload(ctx context.Context, params UploadParams) (*Upload, error) {
	if err := params.Validate(s.maxBytes); err != nil {
		uploadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		return nil, err
	}

	body := bufio.NewReaderSize(params.Body, 512)
	contentType := strings.TrimSpace(params.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := body.Peek(512)
		contentType = http.DetectContentType(head)
	}
	if !IsAllowedContentType(contentType) {
		uploadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		return nil, apperr.Validationf("unsupported receipt type %q", contentType)
	}

	key := s.Key(params.OwnerID, params.FileName, contentType)

	ref, err := s.store.Put(ctx, key, io.LimitReader(body, params.Size), params.Size, contentType)
	if err != nil {
		uploadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Dependency("failed to store receipt", err)
	}

	uploadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "stored")))
	uploadBytes.Record(ctx, params.Size)

	return &Upload{Key: key, Ref: ref, ContentType: contentType, Size: params.Size}, nil
}

// Key builds "<prefix>/<owner>/<unix-millis>-<uuid><ext>". The uuid keeps two
// same-named uploads from one owner in the same millisecond apart.
func (s *Service) Key(ownerID, fileName, contentType string) string {
	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), s.newID(), extension(fileName, contentType))
	owner := url.PathEscape(strings.TrimSpace(ownerID))
	if s.prefix == "" {
		return owner + "/" + name
	}
	return s.prefix + "/" + owner + "/" + name
}
