package network

import (
	"context"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPProbe checks end-to-end reachability by issuing a HEAD request against
// a well-known endpoint. Any HTTP response counts as online, including error
// statuses: the endpoint answering at all proves the network path works.
// A single dropped packet must not flip the monitor offline, so the probe
// retries briefly before giving up.
type HTTPProbe struct {
	client *retryablehttp.Client
	url    string
	logger log.Logger
}

// NewHTTPProbe creates a connectivity probe against the given URL.
func NewHTTPProbe(url string, logger log.Logger) *HTTPProbe {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.HTTPClient.Transport = &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	}

	return &HTTPProbe{
		client: client,
		url:    url,
		logger: logger,
	}
}

// Online implements netmon.Probe.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warnf("create probe request: %s", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debugf("Connectivity probe failed: %s", err)
		return false
	}
	if err := resp.Body.Close(); err != nil {
		p.logger.Printf(err.Error())
	}

	return true
}
