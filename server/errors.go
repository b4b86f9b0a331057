package server

import (
	"errors"
	"fmt"

	"mini-reqrep/middleware"
)

// FailureKind classifies why a request got a status 1 reply.
type FailureKind string

const (
	KindError       FailureKind = "error"
	KindPanic       FailureKind = "panic"
	KindTimeout     FailureKind = "timeout"
	KindRateLimited FailureKind = "rate_limited"
	KindDecode      FailureKind = "decode"
)

// HandlerError is the detail behind a status 1 reply. It is reported through the log,
// metrics and the failure sink; it is never sent to the client.
type HandlerError struct {
	Port int
	Kind FailureKind
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("port %d: %s: %v", e.Port, e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func classify(err error) FailureKind {
	var panicErr *middleware.PanicError
	switch {
	case errors.As(err, &panicErr):
		return KindPanic
	case errors.Is(err, middleware.ErrHandlerTimeout):
		return KindTimeout
	case errors.Is(err, middleware.ErrRateLimited):
		return KindRateLimited
	default:
		return KindError
	}
}
