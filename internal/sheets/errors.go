package sheets

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidJSON reports a 2xx response whose body is not JSON.
var ErrInvalidJSON = errors.New("invalid JSON from backend")

const maxBodySnippet = 512

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	return strings.TrimSpace(fmt.Sprintf("HTTP %d %s %s", e.StatusCode, e.StatusText, e.Body))
}

// BackendError is a mutation the backend rejected with an "error" field.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxBodySnippet {
		return s
	}
	cut := maxBodySnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
