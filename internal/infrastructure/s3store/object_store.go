// Package s3store writes receipt payloads to an Amazon S3 bucket.
package s3store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"fintrack/internal/domain/receipt"
	"fintrack/internal/infrastructure/awsx"
)

// API is the subset of *s3.Client used by the store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket string
	Region string
	// Endpoint is set for S3-compatible services; references then use path style.
	Endpoint string
	// PublicBaseURL, when set, replaces the bucket URL in returned references
	// (CDN or website endpoint).
	PublicBaseURL string
}

type ObjectStore struct {
	api    API
	cfg    Config
	logger *zap.Logger
}

var _ receipt.ObjectStore = (*ObjectStore)(nil)

func New(api API, cfg Config, logger *zap.Logger) *ObjectStore {
	return &ObjectStore{api: api, cfg: cfg, logger: logger}
}

// NewClient builds an S3 client. A custom endpoint switches to path-style addressing.
func NewClient(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsx.LoadConfig(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = endpoint != ""
	}), nil
}

func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", awsx.Classify("failed to upload receipt", err)
	}

	s.logger.Info("receipt stored",
		zap.String("bucket", s.cfg.Bucket),
		zap.String("key", key),
		zap.Int64("size", size),
	)
	return s.Ref(key), nil
}

// Ref returns the URL a stored key is reachable at.
func (s *ObjectStore) Ref(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	case s.cfg.Region != "":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.cfg.Bucket, key)
	}
}
