package middleware

import (
	"context"
	"time"

	"mini-reqrep/message"
)

// TimeOutMiddleware fails a handler that runs longer than timeout with ErrHandlerTimeout.
// The handler's context is cancelled so it can stop early; its result is discarded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m message.Message, port int) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- next(ctx, m, port)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ErrHandlerTimeout
			}
		}
	}
}
