package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/rs/zerolog"

	"thumbgen/internal/config"
	"thumbgen/internal/model"
)

var errNotDataURL = errors.New("not a data URL")

// ImageStore persists generated images and hands out fetchable URLs for them.
type ImageStore interface {
	// Save stores the provider image under key. It returns the URL to record and the
	// storage key, which is empty when the image was not copied.
	Save(ctx context.Context, key, imageURL string) (url string, storageKey string, err error)
	// DownloadURL returns a URL the client can fetch the thumbnail from.
	DownloadURL(ctx context.Context, t *model.Thumbnail) (string, error)
	Delete(ctx context.Context, storageKey string) error
}

// PassthroughImageStore keeps provider URLs as-is.
type PassthroughImageStore struct{}

func (PassthroughImageStore) Save(_ context.Context, _, imageURL string) (string, string, error) {
	return imageURL, "", nil
}

func (PassthroughImageStore) DownloadURL(_ context.Context, t *model.Thumbnail) (string, error) {
	return t.ImageURL, nil
}

func (PassthroughImageStore) Delete(context.Context, string) error { return nil }

// S3API is the subset of the S3 client used by S3ImageStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ImageStore copies data-URL images into a bucket and serves them with presigned URLs.
// Remote http(s) images are recorded without copying.
type S3ImageStore struct {
	client  S3API
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
	logger  zerolog.Logger
}

func NewS3ImageStore(client *s3.Client, bucket string, expiry time.Duration, logger zerolog.Logger) *S3ImageStore {
	return &S3ImageStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		expiry:  expiry,
		logger:  logger.With().Str("service", "ImageStore").Logger(),
	}
}

func (s *S3ImageStore) Save(ctx context.Context, key, imageURL string) (string, string, error) {
	contentType, data, err := parseDataURL(imageURL)
	if errors.Is(err, errNotDataURL) {
		return imageURL, "", nil
	}
	if err != nil {
		return "", "", err
	}
	objectKey := key + extensionFor(contentType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("object_key", objectKey).Msg("Failed to upload image")
		return "", "", fmt.Errorf("upload image %s: %w", objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), objectKey, nil
}

func (s *S3ImageStore) DownloadURL(ctx context.Context, t *model.Thumbnail) (string, error) {
	if t.StorageKey == "" {
		return t.ImageURL, nil
	}
	resp, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(t.StorageKey),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		s.logger.Error().Err(err).Str("storage_path", t.StorageKey).Msg("Failed to generate presigned URL")
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return resp.URL, nil
}

func (s *S3ImageStore) Delete(ctx context.Context, storageKey string) error {
	if storageKey == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		return fmt.Errorf("delete image %s: %w", storageKey, err)
	}
	return nil
}

// parseDataURL decodes a base64 data URL such as data:image/png;base64,....
func parseDataURL(u string) (string, []byte, error) {
	if !strings.HasPrefix(u, "data:") {
		return "", nil, errNotDataURL
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	contentType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return "", nil, fmt.Errorf("unsupported data URL encoding %q", encoding)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return contentType, data, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// NewS3Client builds an S3 client for an S3-compatible endpoint.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		return nil, fmt.Errorf("load S3 config: %w", err)
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	}), nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
