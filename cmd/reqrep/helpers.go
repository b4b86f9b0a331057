package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-reqrep/metrics"
	"mini-reqrep/signals"
)

const (
	registryDialTimeout = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

var errInterrupted = errors.New("interrupted")

// interruptHandler turns an interrupt into a cooperative stop. The command returns
// exit code = interrupt signal number once its work has unwound.
func interruptHandler(interrupted *atomic.Bool, cancel context.CancelFunc, logger *zap.Logger) signals.Handler {
	return func(sig os.Signal) error {
		logger.Info("shutting down the application", zap.Stringer("signal", sig))
		interrupted.Store(true)
		cancel()
		return nil
	}
}

// serveMetrics exposes m on addr/metrics until the returned stop is called. An empty
// addr disables the endpoint.
func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
