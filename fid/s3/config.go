package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes how to reach a dataset archive bucket.
type ClientConfig struct {
	Region string

	// Endpoint overrides the AWS endpoint for MinIO, LocalStack, R2 and
	// similar archives, for example "http://nmr-archive:9000".
	Endpoint string

	// UsePathStyle selects bucket-in-path addressing, which MinIO and
	// LocalStack expect by default.
	UsePathStyle bool

	// Credentials defaults to the SDK credential chain when nil.
	Credentials aws.CredentialsProvider

	// MaxAttempts bounds SDK retries per request. Zero keeps the SDK
	// default.
	MaxAttempts int
}

// NewClient builds an S3 client for an archive.
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region:       "us-east-1",
//	    Endpoint:     "http://nmr-archive:9000",
//	    UsePathStyle: true,
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(cfg.Credentials))
	}
	if cfg.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// StaticCredentials returns a provider for fixed keys, or nil when
// accessKey is empty so the default chain applies.
func StaticCredentials(accessKey, secretKey string) aws.CredentialsProvider {
	if accessKey == "" {
		return nil
	}
	return credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
}
