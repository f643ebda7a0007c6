package compress

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"dbvault/internal/errors"
)

// ZstdCompressor implements Zstandard compression with levels 1-19
type ZstdCompressor struct {
	level int
}

// NewZstdCompressor creates a zstd compressor, clamping the level to 1-19
func NewZstdCompressor(level int) *ZstdCompressor {
	return &ZstdCompressor{level: clampLevel(level, 1, 19)}
}

// Level returns the effective compression level after clamping
func (zc *ZstdCompressor) Level() int {
	return zc.level
}

func (zc *ZstdCompressor) Extension() string {
	return "zst"
}

func (zc *ZstdCompressor) Compress(_ context.Context, inputPath string) (string, error) {
	outputPath := inputPath + ".zst"

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

	encoder, err := zstd.NewWriter(out,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zc.level)))
	if err != nil {
		return "", errors.NewExecutionError("failed to create zstd encoder", err)
	}

	if _, err := io.Copy(encoder, in); err != nil {
		encoder.Close()
		return "", errors.NewExecutionError("failed to write zstd data", err)
	}
	if err := encoder.Close(); err != nil {
		return "", errors.NewExecutionError("failed to finish zstd stream", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.NewExecutionError("failed to flush compressed file", err)
	}

	return outputPath, nil
}

func (zc *ZstdCompressor) Decompress(_ context.Context, compressedPath string) (string, error) {
	if !strings.HasSuffix(compressedPath, ".zst") {
		return "", errors.NewValidationError("file does not have a .zst extension", nil).
			WithContext("path", compressedPath)
	}
	outputPath := strings.TrimSuffix(compressedPath, ".zst")

	in, err := os.Open(compressedPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to open compressed file", err).
			WithContext("path", compressedPath)
	}
	defer in.Close()

	decoder, err := zstd.NewReader(in)
	if err != nil {
		return "", errors.NewIntegrityError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to create decompressed file", err).
			WithContext("path", outputPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, decoder); err != nil {
		return "", errors.NewIntegrityError("failed to decompress zstd data", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.NewExecutionError("failed to flush decompressed file", err)
	}

	return outputPath, nil
}
