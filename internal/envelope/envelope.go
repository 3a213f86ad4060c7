// Package envelope defines the uniform result type every gateway operation
// resolves to. Exactly one of payload/error is meaningful: payload when OK,
// error otherwise.
package envelope

import "fmt"

// Error codes. Stable machine-readable tags; callers branch on these,
// never on message text.
const (
	CodeNetworkError            = "NETWORK_ERROR"
	CodeUpstreamClientError     = "UPSTREAM_CLIENT_ERROR"
	CodeUpstreamServerError     = "UPSTREAM_SERVER_ERROR"
	CodeUpstreamReportedFailure = "UPSTREAM_REPORTED_FAILURE"
	CodeConfigurationError      = "CONFIGURATION_ERROR"
	CodeInternalError           = "INTERNAL_ERROR"
	CodePageNotFound            = "PAGE_NOT_FOUND"
)

// Error describes a classified failure. Constructed once at the point of
// detection and never mutated afterward.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusHint int    `json:"status_hint"`
	TraceID    string `json:"trace_id,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithTrace returns a copy carrying the given trace ID. The receiver is
// left untouched.
func (e *Error) WithTrace(traceID string) *Error {
	if e == nil || traceID == "" {
		return e
	}
	cp := *e
	cp.TraceID = traceID
	return &cp
}

// NewError builds a classified error value.
func NewError(code, message string, statusHint int) *Error {
	return &Error{Code: code, Message: message, StatusHint: statusHint}
}

// Result is the envelope crossing every internal boundary.
type Result[T any] struct {
	OK      bool   `json:"ok"`
	Payload T      `json:"payload,omitempty"`
	Err     *Error `json:"error,omitempty"`
}

// Ok wraps a successful payload.
func Ok[T any](payload T) Result[T] {
	return Result[T]{OK: true, Payload: payload}
}

// Fail wraps a classified error. Panics on nil err: a failed result without
// an error would violate the envelope invariant.
func Fail[T any](err *Error) Result[T] {
	if err == nil {
		panic("envelope: Fail called with nil error")
	}
	return Result[T]{Err: err}
}

// Failf is shorthand for Fail with a formatted message.
func Failf[T any](code string, statusHint int, format string, args ...any) Result[T] {
	return Fail[T](NewError(code, fmt.Sprintf(format, args...), statusHint))
}

// Recode converts a failed result of one payload type into another,
// preserving the error. It must only be called on failed results.
func Recode[T, U any](r Result[T]) Result[U] {
	if r.OK {
		panic("envelope: Recode called on successful result")
	}
	return Result[U]{Err: r.Err}
}
