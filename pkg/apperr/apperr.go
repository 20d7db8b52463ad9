// Package apperr defines the error-kind taxonomy shared by every component,
// and the HTTP status mapping pkg/api uses to translate them.
package apperr

import "fmt"

// Kind is one of the error categories the core's components raise.
type Kind string

const (
	Validation           Kind = "validation"
	AuthRequired         Kind = "auth_required"
	PermissionDenied     Kind = "permission_denied"
	NotFound             Kind = "not_found"
	Conflict             Kind = "conflict"
	SubstrateUnavailable Kind = "substrate_unavailable"
	LLMTransient         Kind = "llm_transient"
	Cancelled            Kind = "cancelled"
	Internal             Kind = "internal"
)

// Error is a typed application error carrying a Kind and optional details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured details and returns the same *Error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an *Error.
// Unrecognized errors map to Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if as(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps a Kind to the HTTP status pkg/api returns for it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return 400
	case AuthRequired:
		return 401
	case PermissionDenied:
		return 403
	case NotFound:
		return 404
	case Conflict:
		return 409
	case SubstrateUnavailable:
		return 503
	case LLMTransient:
		return 502
	case Cancelled:
		return 499
	default:
		return 500
	}
}
