package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindConflict        Kind = "CONFLICT"
	KindInvalidState    Kind = "INVALID_STATE"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindInternal        Kind = "INTERNAL"
)

// Metadata describes how an outer transport layer should surface a kind.
type Metadata struct {
	HTTPStatus int
	Retryable  bool
}

var metadataByKind = map[Kind]Metadata{
	KindNotFound:        {HTTPStatus: http.StatusNotFound},
	KindForbidden:       {HTTPStatus: http.StatusForbidden},
	KindInvalidArgument: {HTTPStatus: http.StatusBadRequest},
	KindConflict:        {HTTPStatus: http.StatusConflict},
	KindInvalidState:    {HTTPStatus: http.StatusBadRequest},
	KindUnavailable:     {HTTPStatus: http.StatusServiceUnavailable, Retryable: true},
	KindInternal:        {HTTPStatus: http.StatusInternalServerError},
}

func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindInternal]
}

// Sentinel causes. They are always wrapped in an *Error carrying the kind the
// caller sees, so errors.Is keeps conditions that share a kind apart.
var (
	ErrAlreadyCancelled   = stdErrors.New("reservation already cancelled")
	ErrReservationStarted = stdErrors.New("reservation start has passed")
	ErrInvalidRange       = stdErrors.New("invalid reservation date range")
	ErrItemNotBookable    = stdErrors.New("item is not available for booking")
	ErrLockTimeout        = stdErrors.New("timed out acquiring item lock")
)

type Error struct {
	kind    Kind
	message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return New(kind, message)
	}
	return &Error{kind: kind, message: message, cause: err}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Expected reports whether the error is a caller-side condition rather than a
// fault in the engine or its dependencies.
func (e *Error) Expected() bool {
	if e == nil {
		return false
	}
	return e.kind != KindInternal && e.kind != KindUnavailable
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for untyped errors.
func KindOf(err error) Kind {
	if te := As(err); te != nil {
		return te.Kind()
	}
	return KindInternal
}

func IsNotFound(err error) bool        { return err != nil && KindOf(err) == KindNotFound }
func IsForbidden(err error) bool       { return err != nil && KindOf(err) == KindForbidden }
func IsInvalidArgument(err error) bool { return err != nil && KindOf(err) == KindInvalidArgument }
func IsConflict(err error) bool        { return err != nil && KindOf(err) == KindConflict }
func IsInvalidState(err error) bool    { return err != nil && KindOf(err) == KindInvalidState }
func IsUnavailable(err error) bool     { return err != nil && KindOf(err) == KindUnavailable }
