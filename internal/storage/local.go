package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dbvault/internal/errors"
)

// LocalBackend stores snapshots on a local or mounted filesystem under a
// configured root path.
type LocalBackend struct {
	root string
}

// NewLocalBackend creates a local backend from a volume configuration with
// a "path" key.
func NewLocalBackend(cfg map[string]string) (*LocalBackend, error) {
	if err := requireKeys(cfg, "path"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg["path"], 0o750); err != nil {
		return nil, errors.NewConfigurationError("cannot create local volume root", err).
			WithContext("path", cfg["path"])
	}
	return &LocalBackend{root: cfg["path"]}, nil
}

func (b *LocalBackend) Name() string {
	return "local"
}

// resolve joins key onto the root, rejecting traversal outside it
func (b *LocalBackend) resolve(key string) (string, error) {
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", errors.NewValidationError("storage key escapes the volume root", nil).
				WithContext("key", key)
		}
	}
	full := filepath.Join(b.root, key)
	if !strings.HasPrefix(full, filepath.Clean(b.root)+string(os.PathSeparator)) {
		return "", errors.NewValidationError("storage key escapes the volume root", nil).
			WithContext("key", key)
	}
	return full, nil
}

func (b *LocalBackend) Write(ctx context.Context, key string, r io.Reader) error {
	full, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return errors.NewConnectionError("failed to create parent directory", err).
			WithContext("key", key)
	}

	// Write to a temp name and rename so readers never see partial files.
	tmp := full + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.NewConnectionError("failed to create file", err).WithContext("key", key)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.NewConnectionError("failed to write file", err).WithContext("key", key)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewConnectionError("failed to flush file", err).WithContext("key", key)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return errors.NewConnectionError("failed to finalize file", err).WithContext("key", key)
	}
	return nil
}

func (b *LocalBackend) ReadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, errors.NewConnectionError("failed to open file", err).WithContext("key", key)
	}
	return f, nil
}

func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	full, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewConnectionError("failed to stat file", err).WithContext("key", key)
	}
	return true, nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	full, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.NewConnectionError("failed to delete file", err).WithContext("key", key)
	}
	return nil
}
