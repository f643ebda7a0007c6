package storage

import (
	"context"
	stderrors "errors"
	"io"
	"path"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"dbvault/internal/errors"
)

// GCSBackend stores snapshots in a Google Cloud Storage bucket under an
// optional key prefix.
type GCSBackend struct {
	client *gcstorage.Client
	bucket string
	prefix string
}

// NewGCSBackend creates a GCS backend from a volume configuration with a
// "bucket" key, optional "prefix" and "credentials_file". Without an
// explicit credentials file, application default credentials apply.
func NewGCSBackend(ctx context.Context, cfg map[string]string) (*GCSBackend, error) {
	if err := requireKeys(cfg, "bucket"); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg["credentials_file"] != "" {
		opts = append(opts, option.WithCredentialsFile(cfg["credentials_file"]))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create gcs client", err)
	}

	return &GCSBackend{client: client, bucket: cfg["bucket"], prefix: cfg["prefix"]}, nil
}

func (b *GCSBackend) Name() string {
	return "gcs"
}

func (b *GCSBackend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func (b *GCSBackend) Write(ctx context.Context, key string, r io.Reader) error {
	w := b.client.Bucket(b.bucket).Object(b.objectKey(key)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return errors.NewConnectionError("failed to upload object to gcs", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	if err := w.Close(); err != nil {
		return errors.NewConnectionError("failed to finalize gcs upload", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return nil
}

func (b *GCSBackend) ReadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(b.objectKey(key)).NewReader(ctx)
	if err != nil {
		return nil, errors.NewConnectionError("failed to download object from gcs", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return r, nil
}

func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.Bucket(b.bucket).Object(b.objectKey(key)).Attrs(ctx)
	if err != nil {
		if stderrors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, errors.NewConnectionError("failed to check object on gcs", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return true, nil
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.client.Bucket(b.bucket).Object(b.objectKey(key)).Delete(ctx)
	if err != nil && !stderrors.Is(err, gcstorage.ErrObjectNotExist) {
		return errors.NewConnectionError("failed to delete object from gcs", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return nil
}

// PresignedDownloadURL hands out a signed GET URL for the object
func (b *GCSBackend) PresignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := b.client.Bucket(b.bucket).SignedURL(b.objectKey(key), &gcstorage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", errors.NewConnectionError("failed to sign gcs download url", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return url, nil
}
