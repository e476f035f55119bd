package upload

// session is the mutable state of one logical upload. Only the Uploader
// mutates it, always under the Uploader's mutex.
type session struct {
	fileLength int64
	chunkSize  int64
	// totalChunks = ceil(fileLength / chunkSize)
	totalChunks int
	// nextChunkStart is the byte offset of the next unsent chunk.
	// Monotonically non-decreasing; equals fileLength only once every chunk
	// was accepted.
	nextChunkStart int64
	// successiveChunkCount is the number of chunks accepted so far, in order.
	successiveChunkCount int
	initialized          bool
	machine              stateMachine
}

func newSession(fileLength, chunkSize int64) *session {
	totalChunks := int((fileLength + chunkSize - 1) / chunkSize)
	return &session{
		fileLength:  fileLength,
		chunkSize:   chunkSize,
		totalChunks: totalChunks,
		machine:     stateMachine{phase: PhaseInitializing},
	}
}

// currentChunkIndex is the 1-based index of the next chunk to send.
func (s *session) currentChunkIndex() int {
	return s.successiveChunkCount + 1
}

// chunkRange returns the byte range [start, end) of the next chunk.
func (s *session) chunkRange() (start, end int64) {
	start = s.nextChunkStart
	end = start + s.chunkSize
	if end > s.fileLength {
		end = s.fileLength
	}
	return start, end
}

// isLastChunk reports whether the 1-based index is the final chunk.
func (s *session) isLastChunk(chunkIndex int) bool {
	return chunkIndex == s.totalChunks
}

// advance records acceptance of the chunk ending at end.
func (s *session) advance(end int64) {
	s.nextChunkStart = end
	s.successiveChunkCount++
}

// allChunksSent reports whether every chunk was accepted.
func (s *session) allChunksSent() bool {
	return s.successiveChunkCount == s.totalChunks
}

// percentage of accepted chunks, 0-100.
func (s *session) percentage() float64 {
	if s.totalChunks == 0 {
		return 0
	}
	return float64(s.successiveChunkCount) / float64(s.totalChunks) * 100
}
