package upload

import (
	"github.com/docker/go-units"
)

// Validator is the pass/fail gate run once before the engine starts.
// Violations are surfaced through the error channel and the upload does not
// proceed.
type Validator interface {
	Validate(config Config, payloadLength int64) error
}

type strictValidator struct{}

// NewValidator returns the default validation gate.
func NewValidator() Validator {
	return strictValidator{}
}

func (strictValidator) Validate(config Config, payloadLength int64) error {
	if config.UploadURL == "" {
		return &ValidationError{Field: "upload URL", Reason: "must not be empty"}
	}
	if config.FilePath == "" && config.Source == nil {
		return &ValidationError{Field: "file path", Reason: "must not be empty"}
	}
	if payloadLength <= 0 {
		return &ValidationError{Field: "file", Reason: "payload is empty or unreadable"}
	}

	minChunkSize := config.MinChunkSize
	if minChunkSize == 0 {
		minChunkSize = DefaultMinChunkSize
	}
	maxChunkSize := config.MaxChunkSize
	if maxChunkSize == 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if config.ChunkSize < minChunkSize || config.ChunkSize > maxChunkSize {
		return &ValidationError{
			Field:  "chunk size",
			Reason: "must be between " + units.HumanSize(float64(minChunkSize)) + " and " + units.HumanSize(float64(maxChunkSize)),
		}
	}

	if config.MaxFileSize > 0 && payloadLength > config.MaxFileSize {
		return &ValidationError{
			Field:  "file",
			Reason: "exceeds the configured maximum of " + units.HumanSize(float64(config.MaxFileSize)),
		}
	}

	if config.MaxRetries < 0 {
		return &ValidationError{Field: "max retries", Reason: "must not be negative"}
	}

	return nil
}
