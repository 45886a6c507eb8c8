// Package apperror defines the error taxonomy shared by all workflow
// operations. Services return *Error values; HTTP handlers translate them to
// status codes with HTTPStatus. The Detail of a wrapped cause is only exposed
// to clients in non-production builds.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	// Internal is the catch-all for unexpected failures.
	Internal Kind = iota
	// InvalidArgument marks malformed or missing required input.
	InvalidArgument
	// PermissionDenied marks a tenant mismatch or insufficient role.
	PermissionDenied
	// NotFound marks a missing study, report, patient, or organization.
	NotFound
	// Conflict marks an identity collision on insert.
	Conflict
	// DownstreamUnavailable marks an unreachable blob store or renderer.
	DownstreamUnavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case PermissionDenied:
		return "permission_denied"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case DownstreamUnavailable:
		return "downstream_unavailable"
	default:
		return "internal"
	}
}

// Error carries a stable user-facing message plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two taxonomy errors by Kind so sentinel-style checks work:
// errors.Is(err, &Error{Kind: NotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a taxonomy error, and
// Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the stable user-facing message for err. Unclassified errors
// get a generic message so internal detail never leaks by default.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// ToHTTP converts err into an echo.HTTPError with the taxonomy's status code
// and the stable user-facing message.
func ToHTTP(err error) *echo.HTTPError {
	return echo.NewHTTPError(HTTPStatus(err), Message(err))
}

// HTTPStatus maps a taxonomy kind to its HTTP-equivalent status class.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidArgument:
		return http.StatusBadRequest
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case DownstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
