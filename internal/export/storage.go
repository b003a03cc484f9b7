package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/solarvest/platform/internal/model"
)

// Storage persists generated export files.
type Storage interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectKey is the storage key of an export file.
func ObjectKey(tenantID, exportID string, format model.ExportFormat, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("exports/%s/%04d/%02d/%s.%s", tenantID, at.Year(), int(at.Month()), exportID, FileExtension(format))
}

// StorageConfig configures the S3-compatible object store.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStorage stores export files in an S3-compatible bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

// NewMinioStorage connects to the object store.
func NewMinioStorage(cfg StorageConfig, logger *slog.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &MinioStorage{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger.With("component", "export_storage"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	s.logger.Info("bucket_created", "bucket", s.bucket)
	return nil
}

// Ping reports whether the bucket is reachable.
func (s *MinioStorage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinioStorage) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
