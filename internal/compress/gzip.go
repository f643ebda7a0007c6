package compress

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"

	"dbvault/internal/errors"
)

// GzipCompressor implements gzip compression with levels 1-9
type GzipCompressor struct {
	level int
}

// NewGzipCompressor creates a gzip compressor, clamping the level to 1-9
func NewGzipCompressor(level int) *GzipCompressor {
	return &GzipCompressor{level: clampLevel(level, gzip.BestSpeed, gzip.BestCompression)}
}

// Level returns the effective compression level after clamping
func (gc *GzipCompressor) Level() int {
	return gc.level
}

func (gc *GzipCompressor) Extension() string {
	return "gz"
}

func (gc *GzipCompressor) Compress(_ context.Context, inputPath string) (string, error) {
	outputPath := inputPath + ".gz"

	in, err := os.Open(inputPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to open file for compression", err).
			WithContext("path", inputPath)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to create compressed file", err).
			WithContext("path", outputPath)
	}
	defer out.Close()

	writer, err := gzip.NewWriterLevel(out, gc.level)
	if err != nil {
		return "", errors.NewExecutionError("failed to create gzip writer", err)
	}

	if _, err := io.Copy(writer, in); err != nil {
		writer.Close()
		return "", errors.NewExecutionError("failed to write gzip data", err)
	}
	if err := writer.Close(); err != nil {
		return "", errors.NewExecutionError("failed to finish gzip stream", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.NewExecutionError("failed to flush compressed file", err)
	}

	return outputPath, nil
}

func (gc *GzipCompressor) Decompress(_ context.Context, compressedPath string) (string, error) {
	if !strings.HasSuffix(compressedPath, ".gz") {
		return "", errors.NewValidationError("file does not have a .gz extension", nil).
			WithContext("path", compressedPath)
	}
	outputPath := strings.TrimSuffix(compressedPath, ".gz")

	in, err := os.Open(compressedPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to open compressed file", err).
			WithContext("path", compressedPath)
	}
	defer in.Close()

	reader, err := gzip.NewReader(in)
	if err != nil {
		return "", errors.NewIntegrityError("failed to read gzip header", err).
			WithContext("path", compressedPath)
	}
	defer reader.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to create decompressed file", err).
			WithContext("path", outputPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", errors.NewIntegrityError("failed to decompress gzip data", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.NewExecutionError("failed to flush decompressed file", err)
	}

	return outputPath, nil
}
