package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"mini-reqrep/message"
	"mini-reqrep/middleware"
)

// DefaultProcessingDelay is how long DefaultHandler pretends to work.
const DefaultProcessingDelay = time.Second

// DefaultHandler logs each request and waits delay before succeeding.
func DefaultHandler(logger *zap.Logger, delay time.Duration) middleware.HandlerFunc {
	return func(ctx context.Context, m message.Message, port int) error {
		logger.Info("received request", zap.Int("port", port), zap.Any("message", m))

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PrintJSONHandler writes each request to w as indented JSON.
func PrintJSONHandler(w io.Writer) middleware.HandlerFunc {
	return func(ctx context.Context, m message.Message, port int) error {
		out, err := json.MarshalIndent(m, "", "    ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
}
