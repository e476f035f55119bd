// Package compression provides optional zstd pre-compression of the upload
// payload. The engine uploads the compressed file and marks the chunk
// requests with Content-Encoding: zstd.
package compression

import (
	"fmt"
	"io"
	"os"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses and decompresses single payload files.
type Compressor struct {
	logger log.Logger
}

// NewCompressor ...
func NewCompressor(logger log.Logger) *Compressor {
	return &Compressor{
		logger: logger,
	}
}

// CompressFile writes a zstd-compressed copy of sourcePath to destPath and
// returns the compressed size in bytes.
func (c *Compressor) CompressFile(sourcePath, destPath string) (int64, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer source.Close() //nolint:errcheck

	dest, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create destination file: %w", err)
	}
	defer dest.Close() //nolint:errcheck

	zstdWriter, err := zstd.NewWriter(dest)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}

	if _, err := io.Copy(zstdWriter, source); err != nil {
		zstdWriter.Close() //nolint:errcheck
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		return 0, fmt.Errorf("flush zstd writer: %w", err)
	}

	info, err := dest.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat destination file: %w", err)
	}

	c.logger.Debugf("Compressed payload to %s", units.HumanSize(float64(info.Size())))
	return info.Size(), nil
}

// DecompressFile restores a file compressed with CompressFile.
func (c *Compressor) DecompressFile(sourcePath, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer source.Close() //nolint:errcheck

	zstdReader, err := zstd.NewReader(source)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zstdReader.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer dest.Close() //nolint:errcheck

	if _, err := io.Copy(dest, zstdReader); err != nil {
		return fmt.Errorf("decompress payload: %w", err)
	}
	return nil
}
