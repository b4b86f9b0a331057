package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-reqrep/codec"
	"mini-reqrep/config"
	"mini-reqrep/metrics"
	"mini-reqrep/middleware"
	"mini-reqrep/registry"
	"mini-reqrep/server"
	"mini-reqrep/signals"
	"mini-reqrep/transport"
)

func newServerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Bind server.port and acknowledge every request",
		Long: "Bind server.port and acknowledge every request with {\"<port>:status\": 0|1}.\n" +
			"The print handler writes each request to stdout as indented JSON. A request\n" +
			"carrying the \"end\" key stops the server after its reply.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runServer(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

func runServer(parent context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var interrupted atomic.Bool
	coord, err := signals.New(
		[]os.Signal{signals.Interrupt},
		[]signals.Handler{interruptHandler(&interrupted, cancel, logger)},
		signals.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	coord.Start()
	defer coord.Stop()
	logger.Debug("signal coordinator", zap.Stringer("codes", coord))

	kind, err := transport.ParseKind(cfg.Transport.Kind)
	if err != nil {
		return err
	}
	codecType, err := codec.ParseCodecType(cfg.Transport.Codec)
	if err != nil {
		return err
	}

	m := metrics.New()
	stopMetrics := serveMetrics(cfg.Metrics.Addr, m, logger)
	defer stopMetrics()

	opts := []server.Option{
		server.WithTransport(kind),
		server.WithCodec(codecType),
		server.WithLogger(logger),
		server.WithMetrics(m),
	}
	if cfg.RegistryEnabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, registryDialTimeout)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Registry.Service, "", cfg.Registry.TTL))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.Burst))
	}
	if cfg.Server.HandlerTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Server.HandlerTimeout))
	}

	handler := server.PrintJSONHandler(out)
	if cfg.Server.Handler == config.HandlerDefault {
		handler = server.DefaultHandler(logger, cfg.Server.ProcessingDelay)
	}

	if err := svr.Run(ctx, cfg.Server.Port, handler, cfg.Server.Forever); err != nil {
		return err
	}
	if interrupted.Load() {
		return &exitError{code: signals.ExitCode(signals.Interrupt), err: errInterrupted}
	}
	return nil
}
