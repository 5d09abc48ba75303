package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/onyx-dev/onyx-database-go/internal/jsonx"
)

// ErrRetryExhausted wraps the last error once every retry has been used.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Status     int
	StatusText string
	// Body is the parsed JSON body, or nil when the body was not JSON.
	Body    any
	RawBody string
	Method  string
	URL     string
}

// Error prefers the backend's error.message and falls back to the status
// line.
func (e *HTTPError) Error() string {
	if msg := e.backendMessage(); msg != "" {
		return msg
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", e.Status, e.StatusText))
}

func (e *HTTPError) backendMessage() string {
	body, ok := e.Body.(map[string]any)
	if !ok {
		return ""
	}
	inner, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := inner["message"].(string)
	return msg
}

// Retryable reports whether the request may succeed when repeated.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func newHTTPError(method, url string, res *http.Response, raw []byte) *HTTPError {
	e := &HTTPError{
		Status:     res.StatusCode,
		StatusText: statusText(res),
		RawBody:    string(raw),
		Method:     method,
		URL:        url,
	}
	var parsed any
	if len(raw) > 0 && jsonx.Unmarshal(raw, &parsed) == nil {
		e.Body = parsed
	}
	return e
}

func statusText(res *http.Response) string {
	if text, ok := strings.CutPrefix(res.Status, strconv.Itoa(res.StatusCode)+" "); ok {
		return text
	}
	if res.Status != "" && res.Status != strconv.Itoa(res.StatusCode) {
		return res.Status
	}
	return http.StatusText(res.StatusCode)
}

// StatusCode returns the status of an *HTTPError in err's chain, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 HTTPError.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
