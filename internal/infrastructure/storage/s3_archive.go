// Package storage archives raw platform pages in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsync/backend/internal/domain/integration"
	infraconfig "github.com/adsync/backend/internal/infrastructure/config"
)

// Archive errors
var (
	ErrArchiveKeyRequired = errors.New("storage: archive key is required")
	ErrArchiveNotFound    = errors.New("storage: archived payload not found")
)

// archiveContentType marks snappy block-compressed JSON
const archiveContentType = "application/x-snappy"

// Ensure S3PayloadArchive implements RawPayloadArchive
var _ integration.RawPayloadArchive = (*S3PayloadArchive)(nil)

// S3PayloadArchive stores raw pages snappy-compressed under
// {prefix}/{org}/{platform}/{session}/{page}.json.sz.
// It works with any S3-compatible store (AWS S3, MinIO, RustFS).
type S3PayloadArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3PayloadArchiveOption is a functional option for configuring S3PayloadArchive
type S3PayloadArchiveOption func(*S3PayloadArchive)

// WithLogger sets a custom logger for S3PayloadArchive
func WithLogger(logger *zap.Logger) S3PayloadArchiveOption {
	return func(s *S3PayloadArchive) {
		s.logger = logger
	}
}

// NewS3PayloadArchive creates an archive from configuration
func NewS3PayloadArchive(cfg *infraconfig.StorageConfig, opts ...S3PayloadArchiveOption) (*S3PayloadArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
		// S3-compatible stores disagree on flexible checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	a := &S3PayloadArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3PayloadArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectKey returns the object key a page is archived under
func (s *S3PayloadArchive) ObjectKey(key integration.ArchiveKey) string {
	name := fmt.Sprintf("%05d.json.sz", key.Page)
	return path.Join(s.prefix, key.OrganizationID.String(), string(key.Platform), key.SessionID.String(), name)
}

// Archive compresses and uploads one raw page
func (s *S3PayloadArchive) Archive(ctx context.Context, key integration.ArchiveKey, payload []byte) error {
	if err := validateArchiveKey(key); err != nil {
		return err
	}

	objectKey := s.ObjectKey(key)
	compressed := snappy.Encode(nil, payload)

	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(compressed),
		ContentLength: aws.Int64(int64(len(compressed))),
		ContentType:   aws.String(archiveContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to archive payload %s: %w", objectKey, err)
	}

	s.logger.Debug("Archived raw payload",
		zap.String("key", objectKey),
		zap.Int("raw_bytes", len(payload)),
		zap.Int("stored_bytes", len(compressed)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Fetch downloads and decompresses an archived page
func (s *S3PayloadArchive) Fetch(ctx context.Context, key integration.ArchiveKey) ([]byte, error) {
	if err := validateArchiveKey(key); err != nil {
		return nil, err
	}

	objectKey := s.ObjectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to fetch payload %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload %s: %w", objectKey, err)
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload %s: %w", objectKey, err)
	}
	return payload, nil
}

// Bucket returns the bucket name
func (s *S3PayloadArchive) Bucket() string {
	return s.bucket
}

func validateArchiveKey(key integration.ArchiveKey) error {
	if key.OrganizationID == uuid.Nil || key.SessionID == uuid.Nil || !key.Platform.IsValid() {
		return ErrArchiveKeyRequired
	}
	return nil
}
