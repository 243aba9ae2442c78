package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kuitang/epic-notes/internal/obs"
)

const s3Backend = "s3"

// S3Store keeps blobs in an S3-compatible bucket (AWS, Tigris, MinIO).
type S3Store struct {
	client     *s3.Client
	bucketName string
}

// S3Config holds the configuration for creating an S3 store.
type S3Config struct {
	// Endpoint is the S3 endpoint URL (e.g., "https://fly.storage.tigris.dev" for Tigris).
	// Leave empty to use default AWS S3.
	Endpoint string
	// Region is the AWS region (e.g., "auto" for Tigris, "us-east-1" for AWS).
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// UsePathStyle enables path-style addressing (required for gofakes3 and MinIO).
	UsePathStyle bool
}

// NewS3Store creates an S3 store with the given configuration.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreFromClient(client, cfg.BucketName), nil
}

// NewS3StoreFromClient wraps an existing S3 client.
func NewS3StoreFromClient(client *s3.Client, bucketName string) *S3Store {
	return &S3Store{
		client:     client,
		bucketName: bucketName,
	}
}

// BucketName returns the configured bucket name.
func (s *S3Store) BucketName() string {
	return s.bucketName
}

// Write uploads data under a fresh reference. PutObject is atomic per key.
func (s *S3Store) Write(ctx context.Context, data []byte, originalName, contentType string) (ref string, err error) {
	defer func() {
		record(s3Backend, "write", err)
		if err == nil {
			obs.BlobBytesWritten.WithLabelValues(s3Backend).Add(float64(len(data)))
		}
	}()

	if len(data) == 0 {
		return "", fmt.Errorf("blob payload is empty")
	}
	ref, err = NewRef(originalName)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(ref),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put blob %q: %w", ref, err)
	}
	return ref, nil
}

// Open downloads the object stored under ref.
func (s *S3Store) Open(ctx context.Context, ref string) (data []byte, err error) {
	defer func() { record(s3Backend, "open", err) }()

	if err := validateRef(ref); err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(ref),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob %q: %w", ref, err)
	}
	defer result.Body.Close()

	data, err = io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob body %q: %w", ref, err)
	}
	return data, nil
}

// Delete removes the object. S3 treats missing keys as success.
func (s *S3Store) Delete(ctx context.Context, ref string) (err error) {
	defer func() { record(s3Backend, "delete", err) }()

	if err := validateRef(ref); err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", ref, err)
	}
	return nil
}
