package upload

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned for any operation on a disposed uploader.
var ErrDisposed = errors.New("uploader is disposed")

// ErrUploadInProgress is returned when Start is called while another session
// is still active.
var ErrUploadInProgress = errors.New("an upload is already in progress")

// ValidationError reports bad configuration caught by the validation gate
// before any transfer starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError reports an operation that is illegal in the current state.
// No state mutation happens when it is raised.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
}

// TransferError reports a single failed chunk attempt that will be retried.
type TransferError struct {
	ChunkIndex        int
	StatusCode        int
	Attempt           int
	RemainingAttempts int
	Err               error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("chunk %d failed (attempt %d, %d attempts remaining)", e.ChunkIndex, e.Attempt, e.RemainingAttempts)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: unexpected status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError reports a chunk that used up its whole retry budget.
// The session stays stalled until the caller aborts or resets it.
type RetryExhaustedError struct {
	ChunkIndex int
	Attempts   int
	Err        error
}

func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("chunk %d failed permanently after %d attempts", e.ChunkIndex, e.Attempts)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
