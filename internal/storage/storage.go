// Package storage uploads organization branding assets to S3-compatible
// object storage (AWS S3, Cloudflare R2, MinIO).
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/config"
)

var ErrNotConfigured = apperr.Upstream("object storage is not configured")

// Uploader stores data under bucket/key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Bucket() string
}

type S3Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Uploader builds a client with static credentials. A custom endpoint
// switches to path-style addressing for R2 and MinIO.
func NewS3Uploader(ctx context.Context, cfg *config.Config) (*S3Uploader, error) {
	if !cfg.StorageEnabled() {
		return nil, ErrNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	base := cfg.S3PublicBaseURL
	if base == "" && cfg.S3Endpoint != "" {
		base = strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	}
	return &S3Uploader{client: client, bucket: cfg.S3Bucket, publicBaseURL: base}, nil
}

func (u *S3Uploader) Bucket() string { return u.bucket }

func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if bucket == "" {
		bucket = u.bucket
	}
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return PublicURL(u.publicBaseURL, key), nil
}

// PublicURL joins base and key with exactly one slash.
func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// BrandingKey returns the object key for an organization asset, e.g.
// organizations/gym-norte/logo-<id>.png.
func BrandingKey(orgSlug, kind, id, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join("organizations", orgSlug, kind+"-"+id+ext)
}
