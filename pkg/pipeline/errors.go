package pipeline

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

// TransientError marks a failure worth retrying: network faults, timeouts,
// and 408/429/5xx responses from any dependency.
type TransientError struct {
	Msg string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Msg, e.Err)
	}
	return "transient: " + e.Msg
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix: 4xx responses
// other than 429, schema failures that survive repair, missing required
// fields, and configuration errors surfaced at runtime.
type PermanentError struct {
	Msg string
	Err error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Msg, e.Err)
	}
	return "permanent: " + e.Msg
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IgnoredError signals that a handler deliberately skipped an event.
// The event reaches the terminal ignored status and is marked processed,
// but no alert fires.
type IgnoredError struct {
	Reason string
}

func (e *IgnoredError) Error() string { return "ignored: " + e.Reason }

// Transient wraps msg/err as a TransientError.
func Transient(msg string, err error) error { return &TransientError{Msg: msg, Err: err} }

// Transientf builds a TransientError from a format string.
func Transientf(format string, args ...any) error {
	return &TransientError{Msg: fmt.Sprintf(format, args...)}
}

// Permanent wraps msg/err as a PermanentError.
func Permanent(msg string, err error) error { return &PermanentError{Msg: msg, Err: err} }

// Permanentf builds a PermanentError from a format string.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Msg: fmt.Sprintf(format, args...)}
}

// Ignored builds an IgnoredError with the given reason.
func Ignored(reason string) error { return &IgnoredError{Reason: reason} }

// IsTransient reports whether err is classified transient. Unclassified
// network-level failures (timeouts, refused connections, DNS errors) are
// treated as transient too, so raw transport errors retry without each call
// site wrapping them.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var ie *IgnoredError
	if errors.As(err, &ie) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ClassifyHTTPStatus maps a dependency's response status to the taxonomy.
// 408, 429 and 5xx are transient; other 4xx are permanent; 2xx/3xx map to nil.
func ClassifyHTTPStatus(status int, detail string) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return Transientf("http %d: %s", status, detail)
	default:
		return Permanentf("http %d: %s", status, detail)
	}
}
