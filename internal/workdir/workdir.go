// Package workdir manages per-job scratch directories under a shared
// temp root. Every backup and restore runs inside its own directory so
// concurrent jobs never collide, and crashed jobs leave behind directories
// that a periodic sweep removes by age.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"dbvault/internal/errors"
)

// Dir is a private scratch directory for a single job.
type Dir struct {
	Path string

	once sync.Once
}

// Acquire creates a fresh scratch directory under root. The label becomes
// part of the directory name so leftover directories can be traced back to
// the job kind that produced them.
func Acquire(root, label string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.NewExecutionError("failed to create temp root", err).
			WithContext("root", root)
	}

	path := filepath.Join(root, fmt.Sprintf("%s-%s", label, uuid.NewString()))
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, errors.NewExecutionError("failed to create work directory", err).
			WithContext("path", path)
	}
	return &Dir{Path: path}, nil
}

// Join returns the path of a file inside the work directory.
func (d *Dir) Join(name string) string {
	return filepath.Join(d.Path, name)
}

// Cleanup removes the directory and everything in it. Safe to call more
// than once and safe to defer alongside an explicit call.
func (d *Dir) Cleanup() error {
	var err error
	d.once.Do(func() {
		err = os.RemoveAll(d.Path)
	})
	return err
}

// RemoveStale deletes work directories under root older than maxAge,
// catching leftovers from jobs that died without cleaning up. Returns the
// number of directories removed.
func RemoveStale(root string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.NewExecutionError("failed to list temp root", err).
			WithContext("root", root)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
