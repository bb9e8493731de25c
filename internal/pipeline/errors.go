package pipeline

import (
	"errors"
	"net/http"
)

// Kind classifies a failed invocation.
type Kind string

const (
	// KindValidation means the request was rejected before any work.
	KindValidation Kind = "validation"
	// KindNotFound means the client does not resolve to an active record.
	KindNotFound Kind = "not_found"
	// KindInternal covers every other failure.
	KindInternal Kind = "internal"
)

// Error is an invocation failure with a Kind for transport mapping.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validationError(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for errors that did not
// come from the pipeline.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.HTTPStatus()
	}
	return http.StatusInternalServerError
}
