package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-reqrep/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m message.Message, port int) error {
			start := time.Now()
			err := next(ctx, m, port)
			fields := []zap.Field{zap.Int("port", port), zap.Duration("duration", time.Since(start))}
			if err != nil {
				logger.Warn("request handler failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Debug("request handled", fields...)
			return nil
		}
	}
}
