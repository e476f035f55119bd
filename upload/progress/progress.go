// Package progress is the single event destination of an upload: it holds the
// latest progress snapshot and fans status, percentage and error updates out
// to the registered callbacks. One sink belongs to exactly one uploader.
package progress

import (
	"fmt"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Snapshot is the latest known state of the upload as reported to callers.
type Snapshot struct {
	Status            string
	UploadPercentage  float64
	CurrentChunkIndex int
	TotalChunks       int
	ChunksUploaded    int
	Completed         bool
}

// Update carries the fields to merge into the snapshot. Nil fields keep their
// previous values. ChunksUploaded is derived, not settable: it is always
// CurrentChunkIndex - 1 whenever a current index is supplied.
type Update struct {
	Status            *string
	UploadPercentage  *float64
	CurrentChunkIndex *int
	TotalChunks       *int
	Completed         *bool
}

// String returns a pointer to s, for use in Update literals.
func String(s string) *string {
	return &s
}

// Float64 returns a pointer to f, for use in Update literals.
func Float64(f float64) *float64 {
	return &f
}

// Int returns a pointer to i, for use in Update literals.
func Int(i int) *int {
	return &i
}

// Bool returns a pointer to b, for use in Update literals.
func Bool(b bool) *bool {
	return &b
}

// Sink accumulates progress updates and delivers them to the callbacks.
type Sink struct {
	mu         sync.Mutex
	snapshot   Snapshot
	onProgress func(Snapshot)
	onError    func(error)
	logger     log.Logger
}

// NewSink ...
func NewSink(logger log.Logger) *Sink {
	return &Sink{
		logger: logger,
	}
}

// SetCallbacks registers the progress and error callbacks. Either may be nil.
func (s *Sink) SetCallbacks(onProgress func(Snapshot), onError func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProgress = onProgress
	s.onError = onError
}

// EmitProgress merges the supplied fields into the snapshot and invokes the
// progress callback with the result. A panic inside the callback is converted
// into an error emission instead of being propagated.
func (s *Sink) EmitProgress(u Update) {
	s.mu.Lock()
	if u.Status != nil {
		s.snapshot.Status = *u.Status
	}
	if u.UploadPercentage != nil {
		s.snapshot.UploadPercentage = *u.UploadPercentage
	}
	if u.CurrentChunkIndex != nil {
		s.snapshot.CurrentChunkIndex = *u.CurrentChunkIndex
		s.snapshot.ChunksUploaded = *u.CurrentChunkIndex - 1
	}
	if u.TotalChunks != nil {
		s.snapshot.TotalChunks = *u.TotalChunks
	}
	if u.Completed != nil {
		s.snapshot.Completed = *u.Completed
	}
	snapshot := s.snapshot
	callback := s.onProgress
	s.mu.Unlock()

	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.EmitError(fmt.Errorf("progress callback panicked: %v", r))
		}
	}()
	callback(snapshot)
}

// EmitError delivers err to the error callback. Fire and forget: a missing
// callback only logs.
func (s *Sink) EmitError(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	callback := s.onError
	s.mu.Unlock()

	if callback == nil {
		if s.logger != nil {
			s.logger.Errorf("upload error: %s", err)
		}
		return
	}
	callback(err)
}

// Current returns a copy of the latest snapshot.
func (s *Sink) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Reset clears the snapshot but keeps the registered callbacks.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{}
}
