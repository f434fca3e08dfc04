// Package apperr defines the error kinds surfaced by the workflow services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not-found"
	KindForbidden           Kind = "forbidden"
	KindUnauthenticated     Kind = "unauthenticated"
	KindInvalidTransition   Kind = "invalid-transition"
	KindConflict            Kind = "conflict"
	KindUpstreamTimeout     Kind = "upstream-timeout"
	KindUpstreamUnavailable Kind = "upstream-unavailable"
	KindInternal            Kind = "internal"
)

var (
	// ErrValidation and friends match any *Error of the same kind with errors.Is.
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrUpstreamTimeout     = &Error{Kind: KindUpstreamTimeout}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
)

// Error is a classified failure. Fields holds per-field messages for validation errors.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, apperr.ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field is a validation error on a single field.
func Field(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: map[string]string{field: msg}}
}

func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func InvalidTransition(from, to string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("transition %s -> %s is not allowed", from, to)}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func UpstreamTimeout(msg string, err error) *Error {
	return &Error{Kind: KindUpstreamTimeout, Message: msg, Err: err}
}

func UpstreamUnavailable(msg string, err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: msg, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}
