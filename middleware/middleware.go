// Package middleware wraps server request handlers.
//
// Middlewares compose as an onion: Chain(A, B, C)(h) runs A.before, B.before, C.before,
// h, C.after, B.after, A.after. Any error a middleware or the handler returns turns into
// a status 1 reply at the server loop.
package middleware

import (
	"context"
	"errors"
	"fmt"

	"mini-reqrep/message"
)

// HandlerFunc processes one request received on port.
type HandlerFunc func(ctx context.Context, m message.Message, port int) error

type Middleware func(next HandlerFunc) HandlerFunc

var (
	ErrHandlerTimeout = errors.New("handler timed out")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// PanicError carries the value a handler panicked with.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Chain combines middlewares into one, outermost first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
