package sources

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

// MaxResponseSize caps how much of an upstream response is read (32MB)
const MaxResponseSize = 32 << 20

// DefaultTimeout is the per-request HTTP timeout
const DefaultTimeout = 60 * time.Second

// ErrUnexpectedStatus is wrapped for non-retryable 4xx responses
var ErrUnexpectedStatus = errors.New("sources: unexpected HTTP status")

// NewHTTPClient returns a client with the given timeout, DefaultTimeout when zero
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Do sends req and reads the body, classifying failures:
// network errors, 429 and 5xx become *integration.TransportError,
// 401 and 403 become *integration.AuthError.
func Do(client *http.Client, req *http.Request, sourceID, op string) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, &integration.TransportError{SourceID: sourceID, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, &integration.TransportError{SourceID: sourceID, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return body, resp.StatusCode, &integration.AuthError{
			SourceID: sourceID,
			Err:      fmt.Errorf("%s: HTTP %d", op, resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return body, resp.StatusCode, &integration.TransportError{
			SourceID: sourceID,
			Op:       op,
			Err:      fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return body, resp.StatusCode, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, op, resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}
