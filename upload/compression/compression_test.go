package compression

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "payload.bin")
	compressedPath := filepath.Join(dir, "payload.zst")
	restoredPath := filepath.Join(dir, "restored.bin")

	payload := bytes.Repeat([]byte("resumable upload payload "), 10_000)
	require.NoError(t, os.WriteFile(sourcePath, payload, 0600))

	compressor := NewCompressor(log.NewLogger())

	compressedSize, err := compressor.CompressFile(sourcePath, compressedPath)
	require.NoError(t, err)
	assert.Greater(t, compressedSize, int64(0))
	assert.Less(t, compressedSize, int64(len(payload)), "repetitive payload should shrink")

	require.NoError(t, compressor.DecompressFile(compressedPath, restoredPath))

	restored, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestCompressor_CompressFile_MissingSource(t *testing.T) {
	compressor := NewCompressor(log.NewLogger())

	_, err := compressor.CompressFile(filepath.Join(t.TempDir(), "nope.bin"), filepath.Join(t.TempDir(), "out.zst"))
	assert.Error(t, err)
}
