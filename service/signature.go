package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/AnTengye/leaseflow/config"
)

var (
	// ErrSignatureUnavailable means the signature store could not take the image.
	ErrSignatureUnavailable = errors.New("signature store unavailable")
	// ErrInvalidSignature means the uploaded bytes are not a usable image.
	ErrInvalidSignature = errors.New("invalid signature image")
)

// MaxSignatureSize bounds an uploaded signature image.
const MaxSignatureSize = 5 << 20

var signatureExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SignatureStore keeps rendered landlord signatures and hands back a
// reference usable as a contract's signature_url.
type SignatureStore interface {
	UploadSignature(ctx context.Context, account, contractID string, image []byte) (string, error)
}

type MinioSignatureStore struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioSignatureStore(cfg *config.MinioConfig) (*MinioSignatureStore, error) {
	return newMinioSignatureStore(cfg, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
}

func newMinioSignatureStore(cfg *config.MinioConfig, opts *minio.Options) (*MinioSignatureStore, error) {
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioSignatureStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioSignatureStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		slog.Info("signature bucket created", "bucket", s.bucket)
	}

	return nil
}

// SignatureObjectName builds the object key for a contract's signature image.
func SignatureObjectName(account, contractID, ext string) string {
	return fmt.Sprintf("%s/%s/signature-%s%s", account, contractID, uuid.New().String(), ext)
}

func (s *MinioSignatureStore) UploadSignature(ctx context.Context, account, contractID string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidSignature)
	}
	if len(image) > MaxSignatureSize {
		return "", fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidSignature, MaxSignatureSize)
	}
	contentType := http.DetectContentType(image)
	ext, ok := signatureExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidSignature, contentType)
	}

	objectName := SignatureObjectName(account, contractID, ext)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(image), int64(len(image)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", ErrSignatureUnavailable, objectName, err)
	}

	if s.config.PublicRead {
		return s.PublicURL(objectName), nil
	}
	url, err := s.PresignedURL(ctx, objectName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureUnavailable, err)
	}
	return url, nil
}

// PresignedURL generates a presigned URL for the object with expiration
func (s *MinioSignatureStore) PresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// PublicURL returns a public URL for the object (if bucket policy allows)
func (s *MinioSignatureStore) PublicURL(objectName string) string {
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.config.Endpoint, s.bucket, objectName)
}
