package api

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTransport marks requests that never got an answer.
	ErrTransport = errors.New("remote authority unreachable")
	// ErrRejected marks requests the server answered with an error status.
	ErrRejected = errors.New("remote authority rejected request")
)

// StatusError is an error status returned by the server.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, msg)
}

func newStatusError(method, path string, code int, body []byte) error {
	msg, _ := extractAPIErrorBody(body)
	return errors.Mark(&StatusError{
		Method:  method,
		Path:    path,
		Code:    code,
		Message: msg,
	}, ErrRejected)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound reports whether the server answered 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsTransport reports whether err is a network failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsRejected reports whether the server refused the request.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
