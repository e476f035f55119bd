// Package upload is a resumable chunked upload engine for pre-authenticated
// endpoints. It splits the payload into sequential byte-range chunks, keeps
// exactly one chunk in flight at a time, retries failed chunks with an
// isolated per-chunk budget and linear backoff, and suspends and resumes the
// transfer on connectivity changes, manual pause and abort.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/bitrise-io/go-chunkedupload/upload/compression"
	"github.com/bitrise-io/go-chunkedupload/upload/netmon"
	"github.com/bitrise-io/go-chunkedupload/upload/network"
	"github.com/bitrise-io/go-chunkedupload/upload/progress"
	"github.com/bitrise-io/go-chunkedupload/upload/retrytracker"
)

// Status values reported through the progress sink.
const (
	StatusInitialized = "initialized"
	StatusUploading   = "uploading"
	StatusRetrying    = "retrying"
	StatusPaused      = "paused"
	StatusResuming    = "resuming"
	StatusOffline     = "offline"
	StatusOnline      = "online"
	StatusCompleted   = "completed"
	StatusAborted     = "aborted"
	StatusFailed      = "failed"
)

// NetworkMonitor is the debounced connectivity signal consumed by the engine.
// netmon.Monitor implements it.
type NetworkMonitor interface {
	StartMonitoring(onChange func(online bool)) error
	StopMonitoring()
}

// Uploader drives one upload session at a time. All session, retry and lock
// state is owned by the Uploader and mutated only under its mutex; the
// network monitor only ever calls back into HandleNetworkChange.
type Uploader struct {
	config    Config
	transport network.Transport
	monitor   NetworkMonitor
	validator Validator
	logger    log.Logger
	sink      *progress.Sink
	tracker   *retrytracker.Tracker

	mu             sync.Mutex
	starting       bool
	session        *session
	source         ChunkSource
	chunkHeaders   map[string]string
	inFlight       bool
	flightGen      int
	disposed       bool
	s3Session      bool
	generation     int
	cancelTransfer context.CancelFunc
	retryTimer     *time.Timer
	resumeTimer    *time.Timer
	monitorRunning bool
	networkKnown   bool
	networkOnline  bool
	tempPayload    string
}

// NewNetworkMonitor builds the default network monitor: a HEAD probe against
// probeURL fed by a polling notifier, debounced with the windows from config.
func NewNetworkMonitor(config Config, probeURL string, logger log.Logger) *netmon.Monitor {
	monitorConfig := netmon.DefaultConfig()
	if config.DebounceWindow > 0 {
		monitorConfig.DebounceWindow = config.DebounceWindow
	}
	if config.StabilityWindow > 0 {
		monitorConfig.StabilityWindow = config.StabilityWindow
	}
	probe := network.NewHTTPProbe(probeURL, logger)
	notifier := netmon.NewPollingNotifier(probe, monitorConfig.StabilityWindow)
	return netmon.New(probe, notifier, monitorConfig, logger)
}

// New creates an Uploader. transport, monitor and logger may be nil: a
// default HTTP chunk transport and logger are created, and a nil monitor
// disables network awareness.
func New(config Config, transport network.Transport, monitor NetworkMonitor, logger log.Logger) *Uploader {
	if logger == nil {
		logger = log.NewLogger()
	}
	if transport == nil {
		transportConfig := network.DefaultTransportConfig()
		if config.ConnectTimeout > 0 {
			transportConfig.ConnectTimeout = config.ConnectTimeout
		}
		if config.SendTimeout > 0 {
			transportConfig.SendTimeout = config.SendTimeout
		}
		if config.ReceiveTimeout > 0 {
			transportConfig.ReceiveTimeout = config.ReceiveTimeout
		}
		transport = network.NewChunkTransport(transportConfig, logger)
	}

	sink := progress.NewSink(logger)
	sink.SetCallbacks(config.OnProgress, config.OnError)

	return &Uploader{
		config:    config,
		transport: transport,
		monitor:   monitor,
		validator: NewValidator(),
		logger:    logger,
		sink:      sink,
		tracker:   retrytracker.New(),
	}
}

// Progress returns the latest progress snapshot.
func (u *Uploader) Progress() progress.Snapshot {
	return u.sink.Current()
}

// Start validates the configuration and begins uploading. It returns an error
// (and emits it) when the uploader is disposed, another session is active, or
// validation fails; transfer failures are reported through the sink only.
func (u *Uploader) Start() error {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		u.sink.EmitError(ErrDisposed)
		return ErrDisposed
	}
	if u.starting || (u.session != nil && !u.session.machine.phase.Terminal()) {
		u.mu.Unlock()
		u.sink.EmitError(ErrUploadInProgress)
		return ErrUploadInProgress
	}
	// The latch keeps a second Start out while begin runs outside the lock.
	u.starting = true
	u.mu.Unlock()

	err := u.begin()
	u.mu.Lock()
	u.starting = false
	u.mu.Unlock()
	if err != nil {
		u.sink.EmitError(err)
		return err
	}
	return nil
}

func (u *Uploader) begin() error {
	config := u.config

	if network.IsS3URL(config.UploadURL) {
		return u.beginS3(config)
	}

	source := config.Source
	tempPayload := ""
	compressed := false
	if source == nil {
		filePath := config.FilePath
		if config.CompressPayload {
			temp, err := os.CreateTemp("", "chunkedupload-*.zst")
			if err != nil {
				return fmt.Errorf("create temp payload: %w", err)
			}
			if err := temp.Close(); err != nil {
				return fmt.Errorf("close temp payload: %w", err)
			}
			if _, err := compression.NewCompressor(u.logger).CompressFile(filePath, temp.Name()); err != nil {
				os.Remove(temp.Name()) //nolint:errcheck
				return &ValidationError{Field: "file", Reason: err.Error()}
			}
			filePath = temp.Name()
			tempPayload = temp.Name()
			compressed = true
		}

		fileSource, err := NewFileSource(filePath)
		if err != nil {
			if tempPayload != "" {
				os.Remove(tempPayload) //nolint:errcheck
			}
			return &ValidationError{Field: "file", Reason: err.Error()}
		}
		source = fileSource
	}

	if err := u.validator.Validate(config, source.Length()); err != nil {
		source.Close() //nolint:errcheck
		if tempPayload != "" {
			os.Remove(tempPayload) //nolint:errcheck
		}
		return err
	}

	headers := map[string]string{}
	for k, v := range config.Headers {
		headers[k] = v
	}
	if compressed {
		headers["Content-Encoding"] = "zstd"
	}

	u.mu.Lock()
	u.session = newSession(source.Length(), config.ChunkSize)
	u.session.initialized = true
	u.source = source
	u.chunkHeaders = headers
	u.tempPayload = tempPayload
	u.s3Session = false
	u.tracker.ResetAll()
	u.generation++
	generation := u.generation
	if u.networkKnown && !u.networkOnline {
		u.session.machine.offline = true
		_ = u.session.machine.transition(PhaseSuspended)
	}
	totalChunks := u.session.totalChunks
	u.mu.Unlock()

	u.sink.Reset()
	u.sink.EmitProgress(progress.Update{
		Status:            progress.String(StatusInitialized),
		TotalChunks:       progress.Int(totalChunks),
		CurrentChunkIndex: progress.Int(1),
		UploadPercentage:  progress.Float64(0),
	})
	u.logger.Infof("Upload started: %d chunks of %s, %s total",
		totalChunks, units.HumanSize(float64(config.ChunkSize)), units.HumanSize(float64(source.Length())))

	u.startMonitor()

	// enter through the guard: a cancelled transfer of a previous session may
	// still be draining, and the guard waits it out
	go u.reenterLoop(generation)
	return nil
}

func (u *Uploader) startMonitor() {
	u.mu.Lock()
	shouldStart := u.monitor != nil && !u.monitorRunning
	if shouldStart {
		u.monitorRunning = true
	}
	u.mu.Unlock()

	if !shouldStart {
		return
	}
	if err := u.monitor.StartMonitoring(u.HandleNetworkChange); err != nil {
		u.logger.Warnf("start network monitor: %s", err)
		// Unwind the half-started monitor so the next session can retry it.
		u.monitor.StopMonitoring()
		u.mu.Lock()
		u.monitorRunning = false
		u.mu.Unlock()
	}
}

// transferLoop is the iterative chunk loop. It is entered from Start, retry
// timers, resume timers and network restoration; the non-blocking
// single-flight acquisition makes duplicate entries no-ops.
func (u *Uploader) transferLoop() {
	for {
		u.mu.Lock()
		if u.disposed || u.session == nil || u.s3Session || u.inFlight || u.session.machine.blocked() {
			u.mu.Unlock()
			return
		}
		sess := u.session

		if sess.allChunksSent() {
			_ = sess.machine.transition(PhaseCompleted)
			totalChunks := sess.totalChunks
			u.mu.Unlock()
			u.finishCompleted(totalChunks)
			return
		}

		chunkIndex := sess.currentChunkIndex()
		if u.tracker.HasExceeded(chunkIndex, u.config.MaxRetries) {
			attempts := u.tracker.AttemptCount(chunkIndex)
			_ = sess.machine.transition(PhaseStalled)
			u.mu.Unlock()
			u.failPermanently(chunkIndex, attempts, nil)
			return
		}

		if err := sess.machine.transition(PhaseTransferring); err != nil {
			u.mu.Unlock()
			u.logger.Warnf("%s", err)
			return
		}
		generation := u.generation
		u.inFlight = true
		u.flightGen = generation
		start, end := sess.chunkRange()
		totalSize := sess.fileLength
		source := u.source
		headers := u.chunkHeaders
		ctx, cancel := context.WithCancel(context.Background())
		u.cancelTransfer = cancel
		u.mu.Unlock()

		data, err := source.Read(start, end)
		if err != nil {
			u.finishFlight(cancel, generation)
			u.handleChunkFailure(generation, chunkIndex, 0, fmt.Errorf("read chunk %d: %w", chunkIndex, err))
			return
		}

		response, err := u.transport.SendChunk(ctx, network.ChunkRequest{
			URL:       u.config.UploadURL,
			Data:      data,
			Start:     start,
			End:       end,
			TotalSize: totalSize,
			Headers:   headers,
		})
		u.finishFlight(cancel, generation)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				u.logger.Debugf("Chunk %d transfer cancelled", chunkIndex)
				return
			}
			u.handleChunkFailure(generation, chunkIndex, 0, err)
			return
		}

		if !u.processResponse(generation, chunkIndex, end, response.StatusCode) {
			return
		}
	}
}

// finishFlight releases the single-flight mark, but only for the flight that
// set it: a cancelled transfer of an older generation must not clobber the
// mark of a flight started after it.
func (u *Uploader) finishFlight(cancel context.CancelFunc, generation int) {
	cancel()
	u.mu.Lock()
	if u.inFlight && u.flightGen == generation {
		u.inFlight = false
		u.cancelTransfer = nil
	}
	u.mu.Unlock()
}

// processResponse interprets the status code of a chunk upload. It returns
// true when the loop should continue with the next chunk.
func (u *Uploader) processResponse(generation, chunkIndex int, end int64, statusCode int) bool {
	u.mu.Lock()
	if u.disposed || u.session == nil || generation != u.generation {
		u.mu.Unlock()
		return false
	}
	sess := u.session

	accepted := statusCode == http.StatusPermanentRedirect || (statusCode >= 200 && statusCode < 300)
	if !accepted {
		u.mu.Unlock()
		u.handleChunkFailure(generation, chunkIndex, statusCode, fmt.Errorf("chunk rejected"))
		return false
	}

	sess.advance(end)
	u.tracker.Reset(chunkIndex)

	finalAccepted := statusCode >= 200 && statusCode < 300 && sess.isLastChunk(chunkIndex)
	if finalAccepted || sess.allChunksSent() {
		_ = sess.machine.transition(PhaseCompleted)
		u.tracker.ResetAll()
		totalChunks := sess.totalChunks
		u.mu.Unlock()
		u.finishCompleted(totalChunks)
		return false
	}

	percentage := sess.percentage()
	nextIndex := sess.currentChunkIndex()
	totalChunks := sess.totalChunks
	u.mu.Unlock()

	u.logger.Debugf("Chunk %d/%d accepted (%.1f%%)", chunkIndex, totalChunks, percentage)
	u.sink.EmitProgress(progress.Update{
		Status:            progress.String(StatusUploading),
		UploadPercentage:  progress.Float64(percentage),
		CurrentChunkIndex: progress.Int(nextIndex),
	})
	return true
}

func (u *Uploader) finishCompleted(totalChunks int) {
	u.mu.Lock()
	source, tempPayload := u.releasePayloadLocked()
	u.mu.Unlock()
	u.cleanupPayload(source, tempPayload)

	u.sink.EmitProgress(progress.Update{
		Status:            progress.String(StatusCompleted),
		Completed:         progress.Bool(true),
		UploadPercentage:  progress.Float64(100),
		CurrentChunkIndex: progress.Int(totalChunks + 1),
	})
	u.logger.Donef("Upload completed, %d chunks accepted", totalChunks)
}

// handleChunkFailure records a failed attempt and schedules the retry, or
// stalls the session when the budget is used up. Failures that race a
// suspension or abort are dropped without touching the retry counter.
func (u *Uploader) handleChunkFailure(generation, chunkIndex, statusCode int, cause error) {
	u.mu.Lock()
	if u.disposed || u.session == nil || generation != u.generation {
		u.mu.Unlock()
		return
	}
	machine := &u.session.machine
	if machine.blocked() {
		u.mu.Unlock()
		return
	}

	attempt := u.tracker.RecordAttempt(chunkIndex)
	if attempt > u.config.MaxRetries {
		_ = machine.transition(PhaseStalled)
		u.mu.Unlock()
		u.failPermanently(chunkIndex, attempt, cause)
		return
	}

	_ = machine.transition(PhaseAwaitingRetry)
	remaining := u.config.MaxRetries - attempt
	if remaining < 0 {
		remaining = 0
	}
	delay := u.config.RetryDelay * time.Duration(attempt)
	timerGeneration := u.generation
	u.retryTimer = time.AfterFunc(delay, func() {
		u.reenterLoop(timerGeneration)
	})
	u.mu.Unlock()

	u.logger.Warnf("Chunk %d attempt %d failed, retrying in %s: %s", chunkIndex, attempt, delay, cause)
	u.sink.EmitProgress(progress.Update{
		Status:            progress.String(StatusRetrying),
		CurrentChunkIndex: progress.Int(chunkIndex),
	})
	u.sink.EmitError(&TransferError{
		ChunkIndex:        chunkIndex,
		StatusCode:        statusCode,
		Attempt:           attempt,
		RemainingAttempts: remaining,
		Err:               cause,
	})
}

func (u *Uploader) failPermanently(chunkIndex, attempts int, cause error) {
	u.logger.Errorf("Chunk %d failed permanently after %d attempts", chunkIndex, attempts)
	u.sink.EmitProgress(progress.Update{
		Status:            progress.String(StatusFailed),
		CurrentChunkIndex: progress.Int(chunkIndex),
	})
	u.sink.EmitError(&RetryExhaustedError{
		ChunkIndex: chunkIndex,
		Attempts:   attempts,
		Err:        cause,
	})
}

// reenterLoop is the guarded re-entry used by retry and resume timers.
// The flags are re-checked at fire time: a pause, network loss or abort that
// happened after scheduling wins.
func (u *Uploader) reenterLoop(generation int) {
	u.mu.Lock()
	if u.disposed || u.session == nil || generation != u.generation || u.session.machine.blocked() {
		u.mu.Unlock()
		return
	}
	if u.inFlight {
		// a cancelled transfer of an older generation is still draining,
		// come back once it released the single-flight mark
		u.resumeTimer = time.AfterFunc(time.Millisecond, func() {
			u.reenterLoop(generation)
		})
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()
	u.transferLoop()
}

// Pause suspends the upload and cancels the in-flight chunk. Legal only while
// an initialized session is neither offline, paused nor finished.
func (u *Uploader) Pause() error {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		u.sink.EmitError(ErrDisposed)
		return ErrDisposed
	}
	if err := u.pauseLegalLocked(); err != nil {
		u.mu.Unlock()
		u.sink.EmitError(err)
		return err
	}

	machine := &u.session.machine
	machine.paused = true
	if machine.phase != PhaseStalled {
		_ = machine.transition(PhaseSuspended)
	}
	u.generation++
	cancel := u.cancelTransfer
	u.cancelTransfer = nil
	u.stopTimersLocked()
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	u.logger.Infof("Upload paused")
	u.sink.EmitProgress(progress.Update{Status: progress.String(StatusPaused)})
	if u.config.OnPause != nil {
		u.config.OnPause()
	}
	return nil
}

func (u *Uploader) pauseLegalLocked() error {
	if u.session == nil || !u.session.initialized {
		return &StateError{Op: "pause", Reason: "no active upload"}
	}
	if u.s3Session {
		return &StateError{Op: "pause", Reason: "not supported for s3 destinations"}
	}
	machine := &u.session.machine
	if machine.phase.Terminal() {
		return &StateError{Op: "pause", Reason: "upload already finished"}
	}
	if machine.phase == PhaseStalled {
		return &StateError{Op: "pause", Reason: "upload failed permanently, abort or reset it"}
	}
	if machine.offline {
		return &StateError{Op: "pause", Reason: "network is offline"}
	}
	if machine.paused {
		return &StateError{Op: "pause", Reason: "already paused"}
	}
	return nil
}

// Resume clears the pause latch and re-enters the chunk loop after a settle
// delay. The flags are re-checked when the delay fires.
func (u *Uploader) Resume() error {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		u.sink.EmitError(ErrDisposed)
		return ErrDisposed
	}
	if err := u.resumeLegalLocked(); err != nil {
		u.mu.Unlock()
		u.sink.EmitError(err)
		return err
	}

	u.session.machine.paused = false
	generation := u.generation
	u.resumeTimer = time.AfterFunc(u.config.ResumeSettleDelay, func() {
		u.reenterLoop(generation)
	})
	u.mu.Unlock()

	u.logger.Infof("Resuming upload")
	u.sink.EmitProgress(progress.Update{Status: progress.String(StatusResuming)})
	return nil
}

func (u *Uploader) resumeLegalLocked() error {
	if u.session == nil || !u.session.initialized {
		return &StateError{Op: "resume", Reason: "no active upload"}
	}
	machine := &u.session.machine
	if machine.phase.Terminal() {
		return &StateError{Op: "resume", Reason: "upload already finished"}
	}
	if machine.phase == PhaseStalled {
		return &StateError{Op: "resume", Reason: "upload failed permanently, abort or reset it"}
	}
	if !machine.paused {
		return &StateError{Op: "resume", Reason: "upload is not paused"}
	}
	if machine.offline {
		return &StateError{Op: "resume", Reason: "network is offline"}
	}
	if u.session.allChunksSent() {
		return &StateError{Op: "resume", Reason: "no chunks left to upload"}
	}
	return nil
}

// Abort cancels the in-flight chunk, clears all session and retry state and
// marks the session aborted. Idempotent; a new Start begins a fresh session.
func (u *Uploader) Abort() {
	u.mu.Lock()
	if u.disposed || u.session == nil || u.session.machine.phase.Terminal() {
		u.mu.Unlock()
		return
	}

	machine := &u.session.machine
	machine.paused = false
	machine.offline = false
	_ = machine.transition(PhaseAborted)
	u.generation++
	cancel := u.cancelTransfer
	u.cancelTransfer = nil
	u.stopTimersLocked()
	u.tracker.ResetAll()
	source, tempPayload := u.releasePayloadLocked()
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	u.cleanupPayload(source, tempPayload)

	u.logger.Infof("Upload aborted")
	u.sink.EmitProgress(progress.Update{Status: progress.String(StatusAborted)})
	if u.config.OnAbort != nil {
		u.config.OnAbort()
	}
}

// Reset clears session, retry and progress state so the same instance can be
// reused for a new upload. Illegal after Dispose.
func (u *Uploader) Reset() error {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return ErrDisposed
	}
	u.generation++
	cancel := u.cancelTransfer
	u.cancelTransfer = nil
	u.stopTimersLocked()
	u.session = nil
	u.tracker.ResetAll()
	source, tempPayload := u.releasePayloadLocked()
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	u.cleanupPayload(source, tempPayload)
	u.sink.Reset()
	u.logger.Debugf("Upload state reset")
	return nil
}

// Dispose tears down the network monitor and cancels everything. All further
// operations report ErrDisposed.
func (u *Uploader) Dispose() {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	u.disposed = true
	u.generation++
	cancel := u.cancelTransfer
	u.cancelTransfer = nil
	u.stopTimersLocked()
	u.session = nil
	stopMonitor := u.monitorRunning
	u.monitorRunning = false
	source, tempPayload := u.releasePayloadLocked()
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopMonitor {
		u.monitor.StopMonitoring()
	}
	u.cleanupPayload(source, tempPayload)
	u.logger.Debugf("Uploader disposed")
}

// HandleNetworkChange is the network monitor's callback. Offline suspends the
// session and silently cancels the in-flight chunk; restored connectivity
// schedules a guarded automatic resume unless the session is paused.
func (u *Uploader) HandleNetworkChange(online bool) {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	u.networkKnown = true
	u.networkOnline = online
	if u.session == nil || u.session.machine.phase.Terminal() {
		u.mu.Unlock()
		u.logger.Debugf("Connectivity: online=%t", online)
		return
	}
	machine := &u.session.machine

	if !online {
		if machine.offline {
			u.mu.Unlock()
			return
		}
		machine.offline = true
		if machine.phase != PhaseStalled {
			_ = machine.transition(PhaseSuspended)
		}
		u.generation++
		cancel := u.cancelTransfer
		u.cancelTransfer = nil
		u.stopTimersLocked()
		u.mu.Unlock()

		// offline cancellation is silent: no pause or abort callback fires,
		// the restore path picks the chunk back up
		if cancel != nil {
			cancel()
		}
		u.logger.Warnf("Network connection lost, upload suspended")
		u.sink.EmitProgress(progress.Update{Status: progress.String(StatusOffline)})
		return
	}

	if !machine.offline {
		u.mu.Unlock()
		return
	}
	machine.offline = false
	shouldResume := !machine.paused && machine.phase != PhaseStalled && !u.session.allChunksSent()
	generation := u.generation
	if shouldResume {
		u.resumeTimer = time.AfterFunc(u.config.ResumeSettleDelay, func() {
			u.reenterLoop(generation)
		})
	}
	u.mu.Unlock()

	u.logger.Infof("Network connection restored")
	u.sink.EmitProgress(progress.Update{Status: progress.String(StatusOnline)})
}

// StateSnapshot returns a read-only diagnostic view of the engine.
func (u *Uploader) StateSnapshot() map[string]interface{} {
	u.mu.Lock()
	defer u.mu.Unlock()

	snapshot := map[string]interface{}{
		"disposed":         u.disposed,
		"networkConnected": !u.networkKnown || u.networkOnline,
		"initialized":      false,
		"uploading":        false,
		"paused":           false,
		"offline":          false,
		"aborted":          false,
		"completed":        false,
		"currentChunk":     0,
		"totalChunks":      0,
		"state":            PhaseUninitialized.String(),
	}
	if u.session != nil {
		machine := u.session.machine
		snapshot["initialized"] = u.session.initialized
		snapshot["uploading"] = u.inFlight
		snapshot["paused"] = machine.paused
		snapshot["offline"] = machine.offline
		snapshot["aborted"] = machine.phase == PhaseAborted
		snapshot["completed"] = machine.phase == PhaseCompleted
		snapshot["currentChunk"] = u.session.currentChunkIndex()
		snapshot["totalChunks"] = u.session.totalChunks
		snapshot["state"] = machine.phase.String()
	}
	return snapshot
}

func (u *Uploader) stopTimersLocked() {
	if u.retryTimer != nil {
		u.retryTimer.Stop()
		u.retryTimer = nil
	}
	if u.resumeTimer != nil {
		u.resumeTimer.Stop()
		u.resumeTimer = nil
	}
}

func (u *Uploader) releasePayloadLocked() (ChunkSource, string) {
	source := u.source
	u.source = nil
	tempPayload := u.tempPayload
	u.tempPayload = ""
	return source, tempPayload
}

func (u *Uploader) cleanupPayload(source ChunkSource, tempPayload string) {
	if source != nil {
		if err := source.Close(); err != nil {
			u.logger.Warnf("close chunk source: %s", err)
		}
	}
	if tempPayload != "" {
		if err := os.Remove(tempPayload); err != nil {
			u.logger.Warnf("remove temp payload: %s", err)
		}
	}
}
