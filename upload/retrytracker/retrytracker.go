// Package retrytracker keeps per-chunk upload attempt counters.
// Counters are isolated per chunk index: a transiently failing chunk cannot
// consume the retry budget of chunks that have not been attempted yet.
package retrytracker

// Tracker maps 1-based chunk indexes to the number of failed attempts.
// A missing entry means the chunk has not failed yet.
// The tracker has no locking of its own: it is only ever called from the
// uploader's single-flight guarded sections.
type Tracker struct {
	attempts map[int]int
}

// New ...
func New() *Tracker {
	return &Tracker{
		attempts: map[int]int{},
	}
}

// RecordAttempt increments the failure counter of the given chunk and
// returns the new count.
func (t *Tracker) RecordAttempt(chunkIndex int) int {
	t.attempts[chunkIndex]++
	return t.attempts[chunkIndex]
}

// AttemptCount returns the number of failed attempts recorded for the chunk.
func (t *Tracker) AttemptCount(chunkIndex int) int {
	return t.attempts[chunkIndex]
}

// HasExceeded reports whether the chunk has used up its whole retry budget,
// i.e. the initial attempt plus maxRetries retries all failed.
func (t *Tracker) HasExceeded(chunkIndex, maxRetries int) bool {
	return t.attempts[chunkIndex] > maxRetries
}

// Reset removes the counter of the given chunk. Called when a chunk is
// accepted by the server.
func (t *Tracker) Reset(chunkIndex int) {
	delete(t.attempts, chunkIndex)
}

// ResetAll removes every counter.
func (t *Tracker) ResetAll() {
	t.attempts = map[int]int{}
}

// Size returns the number of chunks with at least one recorded failure.
func (t *Tracker) Size() int {
	return len(t.attempts)
}
