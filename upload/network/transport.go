// Package network holds the wire-facing pieces of the upload engine: the
// ranged HTTP chunk transport, the connectivity probe and the S3 direct
// backend. Retry decisions live in the upload package, not here.
package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

// subChunkSize is the read granularity used to drive fine-grained progress
// reporting while a chunk body is being written to the wire. Client-side
// choice only, the protocol does not care.
const subChunkSize = 4 * 1024

// ChunkRequest describes one ranged upload request for the byte range
// [Start, End) of a payload of TotalSize bytes.
type ChunkRequest struct {
	URL       string
	Data      []byte
	Start     int64
	End       int64
	TotalSize int64
	// Headers are merged on top of the defaults (Content-Type, Content-Range).
	Headers map[string]string
	// OnSubProgress, when set, is called with the cumulative number of body
	// bytes handed to the transport so far.
	OnSubProgress func(sentBytes int64)
}

// ContentRange returns the Content-Range header value of the request.
func (r ChunkRequest) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End-1, r.TotalSize)
}

// ChunkResponse is the outcome of a single ranged upload request.
type ChunkResponse struct {
	StatusCode int
}

// Transport performs exactly one ranged upload request. Cancelling the
// context aborts the request; the returned error then wraps context.Canceled.
type Transport interface {
	SendChunk(ctx context.Context, req ChunkRequest) (ChunkResponse, error)
}

// TransportConfig ...
type TransportConfig struct {
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
}

// DefaultTransportConfig ...
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout: 30 * time.Second,
		SendTimeout:    60 * time.Second,
		ReceiveTimeout: 30 * time.Second,
	}
}

// ChunkTransport uploads single chunks over HTTP with PUT semantics.
type ChunkTransport struct {
	client *http.Client
	config TransportConfig
	logger log.Logger
}

// NewChunkTransport creates a Transport for ranged chunk uploads.
func NewChunkTransport(config TransportConfig, logger log.Logger) *ChunkTransport {
	client := retryhttp.NewClient(logger)
	// The upload engine owns chunk retries and backoff, so the HTTP layer
	// must attempt each request exactly once.
	client.RetryMax = 0
	client.HTTPClient.Timeout = 0
	client.HTTPClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: config.ReceiveTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       10 * time.Second,
	}

	return &ChunkTransport{
		client: client.StandardClient(),
		config: config,
		logger: logger,
	}
}

// SendChunk uploads the byte range of req and returns the response status.
func (t *ChunkTransport) SendChunk(ctx context.Context, req ChunkRequest) (ChunkResponse, error) {
	if len(req.Data) == 0 {
		return ChunkResponse{}, fmt.Errorf("empty chunk body for range %s", req.ContentRange())
	}
	if int64(len(req.Data)) != req.End-req.Start {
		return ChunkResponse{}, fmt.Errorf("chunk body size %d does not match range %s", len(req.Data), req.ContentRange())
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.config.SendTimeout+t.config.ReceiveTimeout)
	defer cancel()

	body := &subChunkReader{
		reader:     bytes.NewReader(req.Data),
		onProgress: req.OnSubProgress,
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPut, req.URL, body)
	if err != nil {
		return ChunkResponse{}, fmt.Errorf("create chunk request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("Content-Range", req.ContentRange())
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.ContentLength = int64(len(req.Data))

	t.logger.Debugf("Sending chunk %s to %s", req.ContentRange(), req.URL)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return ChunkResponse{}, fmt.Errorf("chunk upload cancelled: %w", context.Canceled)
		}
		return ChunkResponse{}, fmt.Errorf("send chunk %s: %w", req.ContentRange(), err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			t.logger.Printf(err.Error())
		}
	}(resp.Body)

	// drain a little of the body so the connection can be reused
	_, _ = io.CopyN(io.Discard, resp.Body, 4*1024)

	return ChunkResponse{StatusCode: resp.StatusCode}, nil
}

// subChunkReader hands out the body in small reads and reports cumulative
// progress after each one.
type subChunkReader struct {
	reader     *bytes.Reader
	onProgress func(sentBytes int64)
	sent       int64
}

func (r *subChunkReader) Read(p []byte) (int, error) {
	if len(p) > subChunkSize {
		p = p[:subChunkSize]
	}
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		if r.onProgress != nil {
			r.onProgress(r.sent)
		}
	}
	return n, err
}
