// Package vecerr defines the error taxonomy shared by the scheduler,
// embedding client, vectorizer, and bulk indexer.
package vecerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting purposes.
type Kind int

const (
	// Unknown is the zero value; never constructed deliberately.
	Unknown Kind = iota
	// ConfigError is invalid user input: missing column, unsupported
	// model id, dimension outside an adapter's allow-list. Never retried.
	ConfigError
	// Transient covers network, transport, or service-side 5xx errors.
	Transient
	// Throttling is a service signal that the caller exceeds its rate.
	Throttling
	// OutputParse means the service responded but the body didn't match
	// the shape the chosen model adapter expects.
	OutputParse
	// Permanent is any error not present in a processor's retryable set.
	Permanent
	// Cancelled marks a context cancellation or deadline.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case Transient:
		return "Transient"
	case Throttling:
		return "Throttling"
	case OutputParse:
		return "OutputParse"
	case Permanent:
		return "Permanent"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a taxonomy Kind, a human message,
// and an optional service-supplied Code (e.g. "ThrottlingException").
type Error struct {
	Kind    Kind
	Message string
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCode attaches a service error code (e.g. "ThrottlingException") and
// returns the same *Error for chaining at the construction site.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// Preview keeps at most the first max bytes of s, appending an ellipsis
// marker when truncation occurred. Used for OutputParseError messages,
// which must carry a bounded preview of the offending response.
func Preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Unknown, false
}

// CodeOf returns the service error code carried by err if it is (or
// wraps) a *Error with a non-empty Code.
func CodeOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code, true
	}
	return "", false
}

// DefaultIsThrottling matches the taxonomy's Throttling kind carrying the
// service code "ThrottlingException" — the only throttling signal the
// core treats specially per the embedding service's external interface.
func DefaultIsThrottling(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == Throttling && e.Code == "ThrottlingException"
}
