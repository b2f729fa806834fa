package gemini

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindInput is a malformed or incomplete image input. Never retried.
	KindInput Kind = iota + 1
	// KindCredential is a missing or empty API key. Raised before any network call.
	KindCredential
	// KindTransient is a 429, a 5xx or a transport failure. Retried within budget.
	KindTransient
	// KindPermanent is any other failure, including an exhausted retry budget
	// and a successful response without images.
	KindPermanent
	// KindTimeout is an attempt that exceeded the per-attempt deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindCredential:
		return "credential"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// maxBodyInError bounds how much of an upstream body is kept on an Error.
const maxBodyInError = 500

// Error is the single typed failure returned by Client.Execute.
type Error struct {
	Kind Kind

	// StatusCode is the upstream HTTP status, zero when no response arrived.
	StatusCode int

	// Body is the upstream response body truncated to 500 bytes.
	Body string

	// Message is the human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or zero if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether err may succeed on another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout:
		return true
	default:
		return false
	}
}

// isRetryableStatus is true for 429 and for 500 through 598.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 599)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
