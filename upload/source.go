package upload

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ChunkSource reads byte ranges of the upload payload.
type ChunkSource interface {
	// Read returns the exact bytes of [start, end). It fails with a range
	// error when start < 0, end > Length() or start >= end.
	Read(start, end int64) ([]byte, error)
	Length() int64
	Close() error
}

// RangeError reports an out-of-bounds chunk read.
type RangeError struct {
	Start  int64
	End    int64
	Length int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("byte range [%d, %d) is outside payload of %d bytes", e.Start, e.End, e.Length)
}

func checkRange(start, end, length int64) error {
	if start < 0 || end > length || start >= end {
		return &RangeError{Start: start, End: end, Length: length}
	}
	return nil
}

// FileSource reads chunks from a file on disk.
type FileSource struct {
	file   *os.File
	length int64
	mu     sync.Mutex
}

// NewFileSource opens path as a chunk source.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return &FileSource{
		file:   file,
		length: info.Size(),
	}, nil
}

// Read returns the bytes of [start, end).
func (s *FileSource) Read(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, s.length); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := make([]byte, end-start)
	if _, err := io.ReadFull(io.NewSectionReader(s.file, start, end-start), chunk); err != nil {
		return nil, fmt.Errorf("read range [%d, %d): %w", start, end, err)
	}
	return chunk, nil
}

// Length ...
func (s *FileSource) Length() int64 {
	return s.length
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// BytesSource serves chunks from an in-memory payload.
type BytesSource struct {
	data []byte
}

// NewBytesSource ...
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

// Read returns a copy of [start, end).
func (s *BytesSource) Read(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, int64(len(s.data))); err != nil {
		return nil, err
	}
	chunk := make([]byte, end-start)
	copy(chunk, s.data[start:end])
	return chunk, nil
}

// Length ...
func (s *BytesSource) Length() int64 {
	return int64(len(s.data))
}

// Close is a no-op.
func (s *BytesSource) Close() error {
	return nil
}
