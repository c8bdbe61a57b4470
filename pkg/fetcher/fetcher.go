// Package fetcher performs one-shot HTTP GET requests for renewable
// resources (user-agent rule databases, GeoIP databases). It does not
// retry: retry policy belongs to the caller (see internal/workers, whose
// renewal loop tries again on its next tick).
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrHTTPStatus is wrapped into the returned error when the server responds
// with a non-2xx status.
var ErrHTTPStatus = errors.New("non-2xx response")

// BasicAuth is an optional pair of HTTP Basic credentials.
type BasicAuth struct {
	User string
	Pass string
}

// DefaultTimeout bounds a single fetch; the spec does not mandate a value,
// only that the fetch HTTP client "uses its default timeouts" (§5), so this
// mirrors net/http's zero-timeout-by-default posture with a generous ceiling
// to avoid a worker hanging forever on a dead resource host.
const DefaultTimeout = 30 * time.Second

var client = &http.Client{Timeout: DefaultTimeout}

// Fetch issues a single HTTP GET to url. If auth is non-nil, HTTP Basic
// authorization is attached. The response body is returned verbatim on any
// 2xx status; any other status or transport failure is returned as an
// error.
func Fetch(ctx context.Context, url string, auth *BasicAuth) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	if auth != nil {
		req.SetBasicAuth(auth.User, auth.Pass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: transport: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d from %s", ErrHTTPStatus, resp.StatusCode, url)
	}
	return body, nil
}

// Decompress gunzips data. It is a separate step from Fetch because only
// some renewable resources are served gzip-compressed (§4.2).
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("fetcher: gzip: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("fetcher: gzip read: %w", err)
	}
	return out, nil
}
