package compress

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	"dbvault/internal/errors"
)

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3,
	lz4.Level4, lz4.Level5, lz4.Level6,
	lz4.Level7, lz4.Level8, lz4.Level9,
}

// LZ4Compressor implements LZ4 compression with levels 0-9, where 0 is the
// fast mode
type LZ4Compressor struct {
	level int
}

// NewLZ4Compressor creates an lz4 compressor, clamping the level to 0-9
func NewLZ4Compressor(level int) *LZ4Compressor {
	return &LZ4Compressor{level: clampLevel(level, 0, 9)}
}

// Level returns the effective compression level after clamping
func (lc *LZ4Compressor) Level() int {
	return lc.level
}

func (lc *LZ4Compressor) Extension() string {
	return "lz4"
}

func (lc *LZ4Compressor) Compress(_ context.Context, inputPath string) (string, error) {
	outputPath := inputPath + ".lz4"

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

	writer := lz4.NewWriter(out)
	if err := writer.Apply(lz4.CompressionLevelOption(lz4Levels[lc.level])); err != nil {
		return "", errors.NewExecutionError("failed to set lz4 compression level", err)
	}

	if _, err := io.Copy(writer, in); err != nil {
		writer.Close()
		return "", errors.NewExecutionError("failed to write lz4 data", err)
	}
	if err := writer.Close(); err != nil {
		return "", errors.NewExecutionError("failed to finish lz4 stream", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.NewExecutionError("failed to flush compressed file", err)
	}

	return outputPath, nil
}

func (lc *LZ4Compressor) Decompress(_ context.Context, compressedPath string) (string, error) {
	if !strings.HasSuffix(compressedPath, ".lz4") {
		return "", errors.NewValidationError("file does not have a .lz4 extension", nil).
			WithContext("path", compressedPath)
	}
	outputPath := strings.TrimSuffix(compressedPath, ".lz4")

	in, err := os.Open(compressedPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to open compressed file", err).
			WithContext("path", compressedPath)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return "", errors.NewExecutionError("failed to create decompressed file", err).
			WithContext("path", outputPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, lz4.NewReader(in)); err != nil {
		return "", errors.NewIntegrityError("failed to decompress lz4 data", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.NewExecutionError("failed to flush decompressed file", err)
	}

	return outputPath, nil
}
