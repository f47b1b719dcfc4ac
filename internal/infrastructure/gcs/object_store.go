// Package gcs writes receipt payloads to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"fintrack/internal/domain/receipt"
	"fintrack/internal/shared/apperr"
)

type Config struct {
	Bucket string
	// CredentialsFile is a service account key; empty uses application default credentials.
	CredentialsFile string
	PublicBaseURL   string
}

type writerFunc func(ctx context.Context, bucket, key, contentType string) io.WriteCloser

type ObjectStore struct {
	cfg       Config
	newWriter writerFunc
	logger    *zap.Logger
}

var _ receipt.ObjectStore = (*ObjectStore)(nil)

func NewClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

func New(client *storage.Client, cfg Config, logger *zap.Logger) *ObjectStore {
	return &ObjectStore{
		cfg: cfg,
		newWriter: func(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
			w := client.Bucket(bucket).Object(key).NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
		logger: logger,
	}
}

func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.newWriter(ctx, s.cfg.Bucket, key, contentType)
	n, err := io.Copy(w, body)
	if err != nil {
		// Cancelling the context before Close aborts the upload.
		cancel()
		w.Close()
		return "", classify("failed to upload receipt", err)
	}
	if n != size {
		cancel()
		w.Close()
		return "", apperr.Validationf("receipt body is %d bytes, expected %d", n, size)
	}
	if err := w.Close(); err != nil {
		return "", classify("failed to upload receipt", err)
	}

	s.logger.Info("receipt stored",
		zap.String("bucket", s.cfg.Bucket),
		zap.String("key", key),
		zap.Int64("size", size),
	)
	return s.Ref(key), nil
}

func (s *ObjectStore) Ref(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return "https://storage.googleapis.com/" + s.cfg.Bucket + "/" + key
}

func classify(message string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.Access(message, err)
		}
	}
	return apperr.Dependency(message, err)
}
