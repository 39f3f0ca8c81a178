// Package storage uploads report images to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config describes the bucket and how to reach it.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // empty for AWS; set for MinIO and other S3-compatible services
	AccessKey string
	SecretKey string
	// PublicURL is the base of returned object URLs. Defaults to <Endpoint>/<Bucket>.
	PublicURL string
}

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores objects in one bucket.
type S3 struct {
	api     API
	bucket  string
	baseURL string
}

// New builds an S3 client from cfg. Static credentials are used when AccessKey is set,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, cfg), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, cfg Config) *S3 {
	base := cfg.PublicURL
	if base == "" {
		switch {
		case cfg.Endpoint != "":
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3{api: api, bucket: cfg.Bucket, baseURL: strings.TrimRight(base, "/")}
}

// Put uploads body under key and returns the object's public URL.
func (s *S3) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return s.URL(key), nil
}

// Delete removes key.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL of key.
func (s *S3) URL(key string) string { return s.baseURL + "/" + key }
