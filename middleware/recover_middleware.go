package middleware

import (
	"context"

	"mini-reqrep/message"
)

// RecoverMiddleware turns a handler panic into a *PanicError.
// It must sit inside TimeOutMiddleware, which runs the handler on its own goroutine.
func RecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m message.Message, port int) (err error) {
			defer func() {
				if v := recover(); v != nil {
					err = &PanicError{Value: v}
				}
			}()
			return next(ctx, m, port)
		}
	}
}
