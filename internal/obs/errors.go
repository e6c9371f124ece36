// Package obs is the root of the observability backend: shared error kinds
// plus the Server wiring in obs/server.
package obs

import "fmt"

// Kind is a machine-readable error category surfaced on REST responses and
// socket error frames as {"error":{"kind":...}}.
type Kind string

const (
	KindInvalidName  Kind = "invalid_name"
	KindTimeout      Kind = "timeout"
	KindToolFailed   Kind = "tool_failed"
	KindOutOfHistory Kind = "out_of_history"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindBackpressure Kind = "backpressure"
	KindBadRequest   Kind = "bad_request"
	KindInternal     Kind = "internal"
)

// Error is the common carrier for every error kind in the pipeline. It
// generalizes the teacher's many per-package sentinel errors
// (polecat.ErrSessionRunning, crew.ErrCrewNotFound, ...) into one type
// because the REST/socket surface needs a uniform machine-readable kind.
type Error struct {
	Kind   Kind
	Msg    string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// Sentinel errors used with errors.Is across the pipeline.
var (
	ErrInvalidName  = New(KindInvalidName, "invalid name")
	ErrTimeout      = New(KindTimeout, "operation timed out")
	ErrToolFailed   = New(KindToolFailed, "external tool failed")
	ErrOutOfHistory = New(KindOutOfHistory, "timestamp outside retention window")
	ErrNotFound     = New(KindNotFound, "not found")
	ErrConflict     = New(KindConflict, "conflict")
	ErrBackpressure = New(KindBackpressure, "channel full")
	ErrBadRequest   = New(KindBadRequest, "bad request")
	ErrInternal     = New(KindInternal, "internal error")
)

// Is supports errors.Is(err, obs.ErrNotFound) by comparing Kind, matching
// the teacher's convention of comparable sentinel errors but generalized to
// a carrier type that still needs distinct instances to carry Msg/Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
