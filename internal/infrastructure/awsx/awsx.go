// Package awsx holds the AWS SDK setup shared by the DynamoDB and S3 adapters.
package awsx

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go"

	"fintrack/internal/shared/apperr"
)

// LoadConfig resolves credentials from the default chain. endpoint overrides
// the service endpoint (LocalStack, DynamoDB Local); leave empty for AWS.
func LoadConfig(ctx context.Context, region, endpoint string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}

var accessCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"InvalidAccessKeyId":          true,
	"SignatureDoesNotMatch":       true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
}

// Classify wraps an SDK error as an access or dependency error.
func Classify(message string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && accessCodes[apiErr.ErrorCode()] {
		return apperr.Access(message, err)
	}
	return apperr.Dependency(message, err)
}
