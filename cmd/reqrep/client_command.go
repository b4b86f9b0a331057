package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-reqrep/client"
	"mini-reqrep/codec"
	"mini-reqrep/config"
	"mini-reqrep/endpoint"
	"mini-reqrep/loadbalance"
	"mini-reqrep/message"
	"mini-reqrep/metrics"
	"mini-reqrep/registry"
	"mini-reqrep/signals"
	"mini-reqrep/transport"
)

func newClientCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "client",
		Short: "Send client.requests messages and wait for each acknowledgment",
		Long: "Connect to client.host on every port in client.ports (or to the instances\n" +
			"found in the registry) and send client.message client.requests times.\n" +
			"A missed acknowledgment exits with the alarm signal number.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return runClient(cmd.Context(), cfg, logger)
		},
	}
}

func runClient(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var interrupted atomic.Bool
	codes := []os.Signal{signals.Interrupt}
	if cfg.Client.Timeout > 0 {
		// An external alarm still ends the process the way a missed deadline does.
		codes = append(codes, signals.Alarm)
	}
	coord, err := signals.New(codes,
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
	balancer, err := loadbalance.Get(cfg.Client.Balancer)
	if err != nil {
		return err
	}

	m := metrics.New()
	stopMetrics := serveMetrics(cfg.Metrics.Addr, m, logger)
	defer stopMetrics()

	cli := client.New(
		client.WithTransport(kind),
		client.WithCodec(codecType),
		client.WithTimeout(cfg.Client.Timeout),
		client.WithBalancer(balancer),
		client.WithLogger(logger),
		client.WithMetrics(m),
	)
	defer cli.Close()

	if cfg.RegistryEnabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, registryDialTimeout)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		defer reg.Close()
		if err := cli.ConnectRegistry(ctx, reg, cfg.Registry.Service); err != nil {
			return err
		}
	} else if err := cli.Connect(ctx, cfg.Client.Host, cfg.Client.Ports); err != nil {
		return err
	}

	for i := 1; i <= cfg.Client.Requests; i++ {
		reply, err := cli.Send(ctx, cfg.Client.Message, true)
		switch {
		case interrupted.Load():
			return &exitError{code: signals.ExitCode(signals.Interrupt), err: errInterrupted}
		case errors.Is(err, endpoint.ErrTimeout):
			return &exitError{code: signals.ExitCode(signals.Alarm), err: err}
		case err != nil:
			return fmt.Errorf("request %d: %w", i, err)
		case isEmpty(reply):
			return fmt.Errorf("request %d: empty acknowledgment", i)
		}
		logger.Info("request acknowledged", zap.Int("request", i), zap.Any("reply", reply))
	}
	return nil
}

func isEmpty(reply message.Message) bool {
	switch v := reply.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	default:
		return false
	}
}
