package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	connectTimeout = 3 * time.Second
	overallTimeout = 5 * time.Second
)

// Prober confirms that a target URL responds at creation time.
// Injected into validation so tests can fake the network.
type Prober interface {
	Check(ctx context.Context, url string) error
}

// StatusError reports a probe that reached the target but got a
// non-acceptable HTTP status
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}

// HTTPProber issues a HEAD request against the target URL
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Timeout: overallTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
			// Redirect statuses count as reachable, so report them
			// instead of following
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check HEADs the URL and accepts 2xx, 301 and 302 responses
func (p *HTTPProber) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
		return nil
	}

	return &StatusError{Status: resp.StatusCode}
}
