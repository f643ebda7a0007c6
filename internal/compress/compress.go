// Package compress provides the pluggable compression strategies applied to
// database dumps before upload: gzip, zstd, lz4 and a password-protected
// 7-Zip archive. All implementations operate file-to-file on local paths.
package compress

import (
	"context"
	"fmt"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/shell"
)

// Compressor compresses and decompresses local files. The context bounds
// kinds that spawn an external archiver; in-process kinds ignore it.
type Compressor interface {
	// Compress produces the compressed artifact next to inputPath and
	// returns its path. The input file is left in place.
	Compress(ctx context.Context, inputPath string) (string, error)
	// Decompress produces the decompressed file next to compressedPath
	// and returns its path.
	Decompress(ctx context.Context, compressedPath string) (string, error)
	// Extension returns the artifact filename extension without the dot
	Extension() string
}

// Options configures a compressor instance
type Options struct {
	// Level is the compression level. Out-of-range levels are clamped to
	// the kind's valid range, never rejected.
	Level int
	// Password enables encryption for kinds that support it
	Password string
}

// Factory resolves compression kind tags to concrete compressors
type Factory struct {
	executor *shell.Executor
}

// NewFactory creates a compressor factory
func NewFactory(executor *shell.Executor) *Factory {
	return &Factory{executor: executor}
}

// For returns a compressor for the given kind, validating configuration up
// front. Unknown kinds fail fast with a configuration error.
func (f *Factory) For(kind model.CompressionType, opts Options) (Compressor, error) {
	switch kind {
	case model.CompressionGzip:
		return NewGzipCompressor(opts.Level), nil
	case model.CompressionZstd:
		return NewZstdCompressor(opts.Level), nil
	case model.CompressionLZ4:
		return NewLZ4Compressor(opts.Level), nil
	case model.CompressionSevenZip:
		return NewSevenZipCompressor(f.executor, opts.Password), nil
	default:
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("unsupported compression kind: %s", kind), nil)
	}
}

// clampLevel clamps level into [min, max]
func clampLevel(level, min, max int) int {
	if level < min {
		return min
	}
	if level > max {
		return max
	}
	return level
}
