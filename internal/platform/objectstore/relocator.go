// Package objectstore relocates generated artifacts into an S3-compatible
// bucket and hands out presigned, time-limited URLs for them.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/generation"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
)

// MaxArtifactSize caps downloads of remotely hosted artifacts.
const MaxArtifactSize = 20 << 20

var (
	ErrEmptyArtifact    = errors.New("artifact has neither data nor URL")
	ErrArtifactTooLarge = errors.New("artifact exceeds maximum size")
)

// objectAPI is the subset of *minio.Client used by the relocator.
type objectAPI interface {
	PutObject(
		ctx context.Context,
		bucketName, objectName string,
		reader io.Reader,
		objectSize int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	PresignedGetObject(
		ctx context.Context,
		bucketName, objectName string,
		expires time.Duration,
		reqParams url.Values,
	) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Relocator implements generation.ArtifactRelocator on top of MinIO's S3 client.
type Relocator struct {
	api        objectAPI
	bucket     string
	expiry     time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var _ generation.ArtifactRelocator = (*Relocator)(nil)

// NewRelocator connects to the object store described by cfg.
func NewRelocator(cfg config.StorageConfig, logger *slog.Logger) (*Relocator, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return newRelocator(client, cfg, &http.Client{Timeout: time.Minute}, logger), nil
}

func newRelocator(api objectAPI, cfg config.StorageConfig, httpClient *http.Client, logger *slog.Logger) *Relocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relocator{
		api:        api,
		bucket:     cfg.Bucket,
		expiry:     cfg.URLExpiry,
		httpClient: httpClient,
		logger:     logger.With("component", "relocator", "bucket", cfg.Bucket),
	}
}

// EnsureBucket creates the target bucket when it does not exist yet.
func (r *Relocator) EnsureBucket(ctx context.Context) error {
	exists, err := r.api.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", r.bucket, err)
	}
	if exists {
		return nil
	}
	if err := r.api.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
	}
	r.logger.Info("created bucket")
	return nil
}

// Relocate stores the artifact under key and returns a presigned GET URL.
// Inline data is uploaded as is; otherwise the artifact is downloaded from
// its URL first.
func (r *Relocator) Relocate(ctx context.Context, img *generation.ImageRef, key string) (string, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	if img == nil {
		return "", ErrEmptyArtifact
	}

	data, contentType := img.Data, img.MIMEType
	if len(data) == 0 {
		if img.URL == "" {
			return "", ErrEmptyArtifact
		}
		var err error
		data, contentType, err = r.download(ctx, img.URL)
		if err != nil {
			return "", err
		}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	info, err := r.api.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u, err := r.api.PresignedGetObject(ctx, r.bucket, key, r.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	log.Debug("artifact relocated", "key", key, "size", info.Size)
	return u.String(), nil
}

func (r *Relocator) download(ctx context.Context, src string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := r.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("download failed with status %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("download failed with status %d", resp.StatusCode))
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize+1))
			if err != nil {
				return err
			}
			if len(body) > MaxArtifactSize {
				return retry.Unrecoverable(ErrArtifactTooLarge)
			}
			data, contentType = body, resp.Header.Get("Content-Type")
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download artifact: %w", err)
	}
	return data, contentType, nil
}
