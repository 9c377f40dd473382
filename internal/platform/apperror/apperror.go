// Package apperror defines the error kinds shared by the ED services and
// their mapping onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	// KindTransient marks storage failures and lost races. Callers may retry.
	KindTransient
	// KindAuditDegraded is returned next to a successful result when the
	// mutation committed but its audit entries could not be written.
	KindAuditDegraded
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindAuditDegraded:
		return "audit_degraded"
	default:
		return "internal"
	}
}

// AuditDegradedHeader is set on successful responses whose audit trail
// could not be persisted.
const AuditDegradedHeader = "X-Audit-Degraded"

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a storage or concurrency failure.
func Transient(err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

func AuditDegraded(err error) *Error {
	return &Error{Kind: KindAuditDegraded, Message: "audit trail degraded", Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap leaves typed errors untouched and converts anything else into a
// Transient error, which is how raw storage failures reach callers.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Transient(err, format, args...)
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindAuditDegraded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error into an echo.HTTPError. Only the kind and
// message reach the client; the wrapped cause stays internal for logging.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(HTTPStatus(ae.Kind), map[string]string{
		"error":   ae.Kind.String(),
		"message": ae.Message,
	}).SetInternal(err)
}

// Respond writes body with status when err is nil or only reports a degraded
// audit trail. Any other error is converted with ToHTTP.
func Respond(c echo.Context, status int, body any, err error) error {
	if err != nil {
		if !Is(err, KindAuditDegraded) {
			return ToHTTP(err)
		}
		c.Response().Header().Set(AuditDegradedHeader, "true")
	}
	return c.JSON(status, body)
}
