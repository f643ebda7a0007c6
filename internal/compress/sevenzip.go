package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dbvault/internal/errors"
	"dbvault/internal/shell"
)

// SevenZipCompressor wraps the 7z archiver. With a password both the archive
// content and its header are encrypted (-mhe=on); without one it degrades to
// a plain archive. Extraction with a wrong password fails, it does not
// produce corrupt output.
type SevenZipCompressor struct {
	executor *shell.Executor
	password string
}

// NewSevenZipCompressor creates a 7z compressor. The password is optional.
func NewSevenZipCompressor(executor *shell.Executor, password string) *SevenZipCompressor {
	return &SevenZipCompressor{executor: executor, password: password}
}

func (sc *SevenZipCompressor) Extension() string {
	return "7z"
}

func (sc *SevenZipCompressor) Compress(ctx context.Context, inputPath string) (string, error) {
	outputPath := inputPath + ".7z"

	command := fmt.Sprintf("7z a -t7z%s -y %s %s",
		sc.passwordArgs(true), shell.Quote(outputPath), shell.Quote(inputPath))

	if _, err := sc.executor.Run(ctx, command); err != nil {
		return "", err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", errors.NewIntegrityError("7z reported success but produced no archive", err).
			WithContext("path", outputPath)
	}
	return outputPath, nil
}

func (sc *SevenZipCompressor) Decompress(ctx context.Context, compressedPath string) (string, error) {
	if !strings.HasSuffix(compressedPath, ".7z") {
		return "", errors.NewValidationError("file does not have a .7z extension", nil).
			WithContext("path", compressedPath)
	}
	outputPath := strings.TrimSuffix(compressedPath, ".7z")
	outputDir := filepath.Dir(compressedPath)

	command := fmt.Sprintf("7z e%s -y -o%s %s",
		sc.passwordArgs(false), shell.Quote(outputDir), shell.Quote(compressedPath))

	if _, err := sc.executor.Run(ctx, command); err != nil {
		return "", err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", errors.NewIntegrityError("archive extraction produced no output file", err).
			WithContext("path", outputPath)
	}
	return outputPath, nil
}

// passwordArgs returns the quoted password flags, plus header encryption
// when archiving
func (sc *SevenZipCompressor) passwordArgs(archiving bool) string {
	if sc.password == "" {
		return ""
	}
	args := " -p" + shell.Quote(sc.password)
	if archiving {
		args += " -mhe=on"
	}
	return args
}
