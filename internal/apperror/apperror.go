// Package apperror defines the closed set of error kinds surfaced by the
// review engine. Domain packages declare their own sentinel codes on top of
// these kinds so callers can match either the specific code or the kind.
package apperror

import "errors"

type Kind string

const (
	KindValidation Kind = "validation_error"
	KindConflict   Kind = "conflict"
	KindAuth       Kind = "unauthorized"
	KindForbidden  Kind = "forbidden"
	KindState      Kind = "invalid_state"
	KindNotFound   Kind = "not_found"
	KindExternal   Kind = "external_service_error"
	KindRateLimit  Kind = "rate_limited"
)

// Error is a classified domain error. Code is a stable snake_case identifier.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return string(e.Kind)
	}
	return e.Code
}

// Is matches another *Error of the same kind. A target without a code
// matches every error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrState      = &Error{Kind: KindState}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrExternal   = &Error{Kind: KindExternal}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
)

func Validation(code string) *Error { return &Error{Kind: KindValidation, Code: code} }
func Conflict(code string) *Error   { return &Error{Kind: KindConflict, Code: code} }
func Auth(code string) *Error       { return &Error{Kind: KindAuth, Code: code} }
func Forbidden(code string) *Error  { return &Error{Kind: KindForbidden, Code: code} }
func State(code string) *Error      { return &Error{Kind: KindState, Code: code} }
func NotFound(code string) *Error   { return &Error{Kind: KindNotFound, Code: code} }
func External(code string) *Error   { return &Error{Kind: KindExternal, Code: code} }
func RateLimit(code string) *Error  { return &Error{Kind: KindRateLimit, Code: code} }

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind, true
	}
	return "", false
}

// CodeOf returns the code of the first classified error in the chain.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Error()
	}
	return ""
}
