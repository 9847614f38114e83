package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so the HTTP layer can pick a status code
// without knowing where the error came from.
type Kind uint8

const (
	Internal Kind = iota
	Invalid
	NotFound
	Unauthorized
	Unavailable
)

// E carries a client-facing message plus an optional cause.
type E struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *E) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *E {
	return &E{Kind: kind, Message: msg}
}

func Invalidf(format string, a ...any) *E {
	return New(Invalid, fmt.Sprintf(format, a...))
}

func NotFoundf(format string, a ...any) *E {
	return New(NotFound, fmt.Sprintf(format, a...))
}

func Unavailablef(format string, a ...any) *E {
	return New(Unavailable, fmt.Sprintf(format, a...))
}

// Wrap keeps the kind of cause when it is already an *E, otherwise the
// result is Internal.
func Wrap(cause error, msg string) *E {
	kind := Internal
	var e *E
	if errors.As(cause, &e) {
		kind = e.Kind
	}
	return &E{Kind: kind, Message: msg, Cause: cause}
}

func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	var e *E
	return errors.As(err, &e) && e.Kind == kind
}

// StatusCode maps an error onto the HTTP status the API answers with.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	switch KindOf(err) {
	case Invalid:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message is the text placed in the {"error": ...} body. Client errors
// show only their own message; internal ones include the cause chain.
func Message(err error) string {
	var e *E
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	if err == nil {
		return "Internal server error"
	}
	return err.Error()
}
