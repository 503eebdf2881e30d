// Package archive writes finished auctions to an S3-compatible bucket as JSON
// documents.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config points at the bucket. Endpoint is empty for AWS S3 and set for MinIO,
// R2 and other compatible stores.
type Config struct {
	Enabled        bool   `yaml:"enabled" env:"ARCHIVE_ENABLED"`
	Endpoint       string `yaml:"endpoint" env:"ARCHIVE_S3_ENDPOINT"`
	Region         string `yaml:"region" env:"ARCHIVE_S3_REGION"`
	Bucket         string `yaml:"bucket" env:"ARCHIVE_S3_BUCKET"`
	AccessKey      string `yaml:"access_key" env:"ARCHIVE_S3_ACCESS_KEY"`
	SecretKey      string `yaml:"secret_key" env:"ARCHIVE_S3_SECRET_KEY"`
	UseSSL         bool   `yaml:"use_ssl" env:"ARCHIVE_S3_USE_SSL"`
	ForcePathStyle bool   `yaml:"force_path_style" env:"ARCHIVE_S3_FORCE_PATH_STYLE"`
}

// S3Writer uploads objects into one bucket
type S3Writer struct {
	s3     *s3.Client
	bucket string
}

func NewS3Writer(ctx context.Context, cfg Config) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &S3Writer{s3: client, bucket: cfg.Bucket}, nil
}

// Put uploads data in a single PutObject request
func (w *S3Writer) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := w.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	return nil
}

// Health checks the bucket is reachable with the configured credentials
func (w *S3Writer) Health(ctx context.Context) error {
	if _, err := w.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(w.bucket)}); err != nil {
		return fmt.Errorf("archive: head bucket %s: %w", w.bucket, err)
	}
	return nil
}

func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
