// Package storage provides the uniform backend abstraction snapshots are
// written to: local disk, S3-compatible object storage, Google Cloud
// Storage, SFTP and FTP. A factory resolves a volume's type tag and
// decrypted configuration to a concrete backend.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/secrets"
)

// Backend exposes the capability set shared by every storage technology
type Backend interface {
	// Name returns the backend's type tag for logging
	Name() string
	// Write stores the stream under key, creating parent structure as
	// needed. Keys are distinct per snapshot so concurrent writes never
	// collide.
	Write(ctx context.Context, key string, r io.Reader) error
	// ReadStream opens the object under key for reading
	ReadStream(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object is present under key
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object under key
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by object-storage backends that can hand out
// time-limited download URLs. Other backends fall back to streaming through
// the application.
type Presigner interface {
	PresignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Factory resolves volumes to storage backends
type Factory struct {
	codec *secrets.Codec
}

// NewFactory creates a backend factory. The codec decrypts sensitive volume
// configuration at point of use.
func NewFactory(codec *secrets.Codec) *Factory {
	return &Factory{codec: codec}
}

// ForVolume resolves the volume's type tag to a concrete backend. Unknown
// tags and incomplete configuration fail here, before any transfer starts.
func (f *Factory) ForVolume(ctx context.Context, volume *model.Volume) (Backend, error) {
	cfg, err := f.codec.DecryptFields("volume", volume.Config)
	if err != nil {
		return nil, err
	}

	switch volume.Type {
	case model.VolumeTypeLocal:
		return NewLocalBackend(cfg)
	case model.VolumeTypeS3:
		return NewS3Backend(ctx, cfg)
	case model.VolumeTypeGCS:
		return NewGCSBackend(ctx, cfg)
	case model.VolumeTypeSFTP:
		return NewSFTPBackend(cfg)
	case model.VolumeTypeFTP:
		return NewFTPBackend(cfg)
	default:
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("unsupported volume type: %s", volume.Type), nil).
			WithContext("volume_id", volume.ID)
	}
}

// requireKeys validates that every named configuration key is present and
// non-empty
func requireKeys(cfg map[string]string, keys ...string) error {
	for _, key := range keys {
		if cfg[key] == "" {
			return errors.NewConfigurationError(
				fmt.Sprintf("volume configuration is missing required key %q", key), nil)
		}
	}
	return nil
}
