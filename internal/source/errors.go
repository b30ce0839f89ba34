package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	ConnectionFailed ErrorKind = iota
	Timeout
	NotFound
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection failed"
	case Timeout:
		return "timeout"
	case NotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// TransportError reports a failure to fetch stream bytes.
type TransportError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport %s", e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func statusError(url string, code int, status string) *TransportError {
	kind := ConnectionFailed
	switch code {
	case http.StatusNotFound, http.StatusGone:
		kind = NotFound
	}
	return &TransportError{
		Kind:       kind,
		URL:        url,
		StatusCode: code,
		Cause:      fmt.Errorf("stream returned status %s", status),
	}
}

// errReadTimeout is the cause recorded when no byte arrives within the read timeout.
var errReadTimeout = errors.New("read timeout")

// classify wraps a low-level network error into a TransportError.
func classify(url string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	kind := ConnectionFailed
	var netErr net.Error
	switch {
	case errors.Is(err, errReadTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = Timeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = Timeout
	}
	return &TransportError{Kind: kind, URL: url, Cause: err}
}
