package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage puts product images in an S3-compatible bucket and hands back
// public URLs.
type Storage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// Config carries the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base for stored objects.
	// Defaults to the endpoint itself.
	PublicURL string
	// Transport, when set, replaces the default HTTP transport. Used to
	// add retry and circuit-breaker behaviour around the object store.
	Transport http.RoundTripper
}

// NewStorage connects to the object store and makes sure the bucket
// exists.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("media: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("media: bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("media: connect object store: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("media: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("media: create bucket: %w", err)
		}
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}
	return &Storage{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadImage stores one product image under a generated name and
// returns its public URL.
func (s *Storage) UploadImage(ctx context.Context, reader io.Reader, size int64, contentType, originalName string) (string, error) {
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("media: unsupported content type %q", contentType)
	}
	if trimmed := strings.ToLower(path.Ext(originalName)); trimmed != "" {
		if trimmed == ".jpeg" {
			trimmed = ".jpg"
		}
		if trimmed == ext {
			ext = trimmed
		}
	}
	objectName := fmt.Sprintf("products/%s/%s%s", time.Now().UTC().Format("2006/01"), uuid.NewString(), ext)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("media: put object: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, objectName), nil
}
