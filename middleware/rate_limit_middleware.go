package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-reqrep/message"
)

// RateLimitMiddleware admits requests through a token bucket of r tokens per second.
// Requests arriving with an empty bucket fail with ErrRateLimited.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m message.Message, port int) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(ctx, m, port)
		}
	}
}
