package upload

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"

	"github.com/bitrise-io/go-chunkedupload/upload/progress"
)

// Default chunk size bounds. Overridable per config for callers with
// unusual payloads.
const (
	DefaultMinChunkSize = 5 * 1024 * 1024
	DefaultMaxChunkSize = 500 * 1024 * 1024
)

// Config is the full configuration surface of one upload.
type Config struct {
	// UploadURL is the pre-authenticated destination. https:// URLs go
	// through the chunk engine, s3:// URLs through the S3 direct backend.
	UploadURL string
	// FilePath is the payload on disk. Ignored when Source is set.
	FilePath string
	// Source overrides FilePath with a custom chunk source.
	Source ChunkSource

	// ChunkSize in bytes. Must be within [MinChunkSize, MaxChunkSize].
	ChunkSize int64
	// MinChunkSize and MaxChunkSize bound ChunkSize at validation time.
	MinChunkSize int64
	MaxChunkSize int64
	// MaxFileSize is an optional payload ceiling; zero means no limit.
	MaxFileSize int64

	// MaxRetries is the per-chunk retry budget on top of the first attempt.
	MaxRetries int
	// RetryDelay is scaled linearly with the chunk's attempt number.
	RetryDelay time.Duration
	// ResumeSettleDelay is waited before a manual or network-triggered
	// resume re-enters the chunk loop.
	ResumeSettleDelay time.Duration

	// DebounceWindow and StabilityWindow tune the network monitor.
	DebounceWindow  time.Duration
	StabilityWindow time.Duration

	// Transport timeouts.
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration

	// Headers are added to every chunk request.
	Headers map[string]string

	// CompressPayload pre-compresses the file with zstd before chunking.
	CompressPayload bool

	// S3 settings, used only for s3:// destinations.
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Callbacks. All optional.
	OnProgress func(progress.Snapshot)
	OnError    func(error)
	OnPause    func()
	OnAbort    func()
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		ChunkSize:         8 * 1024 * 1024,
		MinChunkSize:      DefaultMinChunkSize,
		MaxChunkSize:      DefaultMaxChunkSize,
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		ResumeSettleDelay: 500 * time.Millisecond,
		DebounceWindow:    500 * time.Millisecond,
		StabilityWindow:   3 * time.Second,
		ConnectTimeout:    30 * time.Second,
		SendTimeout:       60 * time.Second,
		ReceiveTimeout:    30 * time.Second,
	}
}

// ParseChunkSize converts a human readable size like "8MB" to bytes.
func ParseChunkSize(size string) (int64, error) {
	bytes, err := units.RAMInBytes(size)
	if err != nil {
		return 0, fmt.Errorf("parse chunk size %q: %w", size, err)
	}
	return bytes, nil
}

type envInput struct {
	UploadURL       stepconf.Secret `env:"upload_url,required"`
	FilePath        string          `env:"file_path,required"`
	ChunkSize       string          `env:"chunk_size"`
	MaxFileSize     string          `env:"max_file_size"`
	MaxRetries      int             `env:"max_retries"`
	RetryDelaySec   int             `env:"retry_delay_seconds"`
	CompressPayload bool            `env:"compress_payload"`
}

// ConfigFromEnv builds a Config from environment variables, for callers that
// wire the uploader into step-style tooling.
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	var input envInput
	if err := stepconf.NewInputParser(envRepo).Parse(&input); err != nil {
		return Config{}, fmt.Errorf("parse inputs: %w", err)
	}

	config := DefaultConfig()
	config.UploadURL = string(input.UploadURL)
	config.FilePath = input.FilePath
	config.CompressPayload = input.CompressPayload

	if input.ChunkSize != "" {
		chunkSize, err := ParseChunkSize(input.ChunkSize)
		if err != nil {
			return Config{}, err
		}
		config.ChunkSize = chunkSize
	}
	if input.MaxFileSize != "" {
		maxFileSize, err := units.RAMInBytes(input.MaxFileSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse max file size %q: %w", input.MaxFileSize, err)
		}
		config.MaxFileSize = maxFileSize
	}
	if input.MaxRetries > 0 {
		config.MaxRetries = input.MaxRetries
	}
	if input.RetryDelaySec > 0 {
		config.RetryDelay = time.Duration(input.RetryDelaySec) * time.Second
	}

	return config, nil
}
