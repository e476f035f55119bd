package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/bitrise-io/go-chunkedupload/upload/network"
	"github.com/bitrise-io/go-chunkedupload/upload/progress"
)

// beginS3 routes s3:// destinations to the multipart uploader. The AWS SDK
// chunks the payload itself, so the HTTP chunk loop is bypassed; pause and
// resume are not available for these sessions.
func (u *Uploader) beginS3(config Config) error {
	bucket, key, err := network.ParseS3URL(config.UploadURL)
	if err != nil {
		return &ValidationError{Field: "upload URL", Reason: err.Error()}
	}
	if config.FilePath == "" {
		return &ValidationError{Field: "file", Reason: "s3 destinations require a file path"}
	}
	info, err := os.Stat(config.FilePath)
	if err != nil {
		return &ValidationError{Field: "file", Reason: err.Error()}
	}
	if err := u.validator.Validate(config, info.Size()); err != nil {
		return err
	}

	u.mu.Lock()
	u.session = newSession(info.Size(), config.ChunkSize)
	u.session.initialized = true
	u.s3Session = true
	u.tracker.ResetAll()
	u.generation++
	generation := u.generation
	_ = u.session.machine.transition(PhaseTransferring)
	u.inFlight = true
	u.flightGen = generation
	ctx, cancel := context.WithCancel(context.Background())
	u.cancelTransfer = cancel
	totalChunks := u.session.totalChunks
	u.mu.Unlock()

	u.sink.Reset()
	u.sink.EmitProgress(progress.Update{
		Status:            progress.String(StatusInitialized),
		TotalChunks:       progress.Int(totalChunks),
		CurrentChunkIndex: progress.Int(1),
		UploadPercentage:  progress.Float64(0),
	})

	go func() {
		uploadErr := network.UploadToS3(ctx, network.S3UploadParams{
			FilePath:        config.FilePath,
			FileSize:        info.Size(),
			Bucket:          bucket,
			Key:             key,
			Region:          config.S3Region,
			AccessKeyID:     config.S3AccessKeyID,
			SecretAccessKey: config.S3SecretAccessKey,
			PartSize:        config.ChunkSize,
		}, u.logger)
		cancelled := ctx.Err() != nil
		cancel()

		u.mu.Lock()
		if u.inFlight && u.flightGen == generation {
			u.inFlight = false
			u.cancelTransfer = nil
		}
		if u.disposed || u.session == nil || generation != u.generation {
			u.mu.Unlock()
			return
		}
		if uploadErr != nil {
			if cancelled {
				u.mu.Unlock()
				return
			}
			_ = u.session.machine.transition(PhaseStalled)
			u.mu.Unlock()
			u.sink.EmitProgress(progress.Update{Status: progress.String(StatusFailed)})
			u.sink.EmitError(fmt.Errorf("s3 upload: %w", uploadErr))
			return
		}
		sess := u.session
		sess.successiveChunkCount = sess.totalChunks
		sess.nextChunkStart = sess.fileLength
		_ = sess.machine.transition(PhaseCompleted)
		u.mu.Unlock()
		u.finishCompleted(totalChunks)
	}()
	return nil
}
