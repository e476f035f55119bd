package upload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitrise-io/go-chunkedupload/upload/network"
	"github.com/bitrise-io/go-chunkedupload/upload/progress"
)

// transportStep scripts the outcome of one SendChunk call. A step with a
// release channel blocks until the channel is closed or the context is
// cancelled. Unscripted calls succeed with 200.
type transportStep struct {
	status  int
	err     error
	release chan struct{}
}

type fakeTransport struct {
	mu    sync.Mutex
	steps []transportStep
	calls []network.ChunkRequest

	started chan network.ChunkRequest
}

func newFakeTransport(steps ...transportStep) *fakeTransport {
	return &fakeTransport{
		steps:   steps,
		started: make(chan network.ChunkRequest, 64),
	}
}

func (f *fakeTransport) SendChunk(ctx context.Context, request network.ChunkRequest) (network.ChunkResponse, error) {
	f.mu.Lock()
	index := len(f.calls)
	f.calls = append(f.calls, request)
	step := transportStep{status: 200}
	if index < len(f.steps) {
		step = f.steps[index]
	}
	if step.status == 0 && step.err == nil {
		step.status = 200
	}
	f.mu.Unlock()

	f.started <- request

	if step.release != nil {
		select {
		case <-step.release:
		case <-ctx.Done():
			return network.ChunkResponse{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return network.ChunkResponse{}, err
	}
	if step.err != nil {
		return network.ChunkResponse{}, step.err
	}
	return network.ChunkResponse{StatusCode: step.status}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) call(index int) network.ChunkRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[index]
}

// gatedSource wraps a BytesSource so a test can hold the first Length call
// open and observe the uploader mid-initialization.
type gatedSource struct {
	*BytesSource
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedSource(payload []byte) *gatedSource {
	return &gatedSource{
		BytesSource: NewBytesSource(payload),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedSource) Length() int64 {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.BytesSource.Length()
}

type fakeMonitor struct {
	mu       sync.Mutex
	onChange func(online bool)
	startErr error
	starts   int
	stops    int
}

func (f *fakeMonitor) StartMonitoring(onChange func(online bool)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.onChange = onChange
	return nil
}

func (f *fakeMonitor) StopMonitoring() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeMonitor) report(online bool) {
	f.mu.Lock()
	onChange := f.onChange
	f.mu.Unlock()
	if onChange != nil {
		onChange(online)
	}
}

// recorder collects everything the uploader emits.
type recorder struct {
	mu        sync.Mutex
	snapshots []progress.Snapshot
	failures  []error
	pauses    int
	aborts    int
}

func (r *recorder) onProgress(snapshot progress.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recorder) onPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
}

func (r *recorder) onAbort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborts++
}

func (r *recorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]string, len(r.snapshots))
	for i, snapshot := range r.snapshots {
		statuses[i] = snapshot.Status
	}
	return statuses
}

func (r *recorder) hasStatus(status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snapshot := range r.snapshots {
		if snapshot.Status == status {
			return true
		}
	}
	return false
}

func (r *recorder) countStatus(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, snapshot := range r.snapshots {
		if snapshot.Status == status {
			count++
		}
	}
	return count
}

func (r *recorder) lastSnapshot() progress.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return progress.Snapshot{}
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

func (r *recorder) pauseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauses
}

func (r *recorder) abortCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborts
}

// testConfig uploads a 10 byte payload in three chunks (4+4+2) with short
// timings so the retry and resume timers fire within the test.
func testConfig(rec *recorder) Config {
	config := DefaultConfig()
	config.UploadURL = "https://upload.example.com/session/1"
	config.Source = NewBytesSource([]byte("0123456789"))
	config.ChunkSize = 4
	config.MinChunkSize = 1
	config.MaxRetries = 3
	config.RetryDelay = 5 * time.Millisecond
	config.ResumeSettleDelay = 5 * time.Millisecond
	config.OnProgress = rec.onProgress
	config.OnError = rec.onError
	config.OnPause = rec.onPause
	config.OnAbort = rec.onAbort
	return config
}

func waitUntil(t *testing.T, message string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}
