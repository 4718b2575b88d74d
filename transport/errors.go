package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodySize = 4096

// HTTPError is returned for every non-2xx reply.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string

	// Errors holds the messages of a `{"errors": [...]}` reply, if any.
	Errors []string
}

func (e *HTTPError) Error() string {
	msg := e.Body
	if len(e.Errors) > 0 {
		msg = strings.Join(e.Errors, "; ")
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// StatusCode returns the status of the *HTTPError in err's chain, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err carries a 404 reply.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func newHTTPError(r Request, resp *http.Response) *HTTPError {
	httpErr := &HTTPError{
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: resp.StatusCode,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		httpErr.Body = fmt.Sprintf("read body: %s", err)
		return httpErr
	}
	httpErr.Body = strings.TrimSpace(string(body))

	var reply struct {
		Errors []string `json:"errors"`
	}
	if json.Unmarshal(body, &reply) == nil {
		httpErr.Errors = reply.Errors
	}

	return httpErr
}
