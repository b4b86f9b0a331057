package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"

	"mini-reqrep/codec"
	"mini-reqrep/loadbalance"
	"mini-reqrep/transport"
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	if _, err := transport.ParseKind(c.Transport.Kind); err != nil {
		fail("transport.kind: %w", err)
	}
	if _, err := codec.ParseCodecType(c.Transport.Codec); err != nil {
		fail("transport.codec: %w", err)
	}

	if !validPort(c.Server.Port) {
		fail("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Handler != HandlerPrint && c.Server.Handler != HandlerDefault {
		fail("server.handler %q must be %s or %s", c.Server.Handler, HandlerPrint, HandlerDefault)
	}
	if c.Server.HandlerTimeout < 0 {
		fail("server.handler_timeout must not be negative")
	}
	if c.Server.ProcessingDelay < 0 {
		fail("server.processing_delay must not be negative")
	}
	if c.Server.RateLimit < 0 {
		fail("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		fail("server.burst must be at least 1 when rate_limit is set")
	}

	if !c.RegistryEnabled() && len(c.Client.Ports) == 0 {
		fail("client.ports is empty")
	}
	for _, p := range c.Client.Ports {
		if !validPort(p) {
			fail("client.ports: %d out of range", p)
		}
	}
	if c.Client.Timeout < 0 {
		fail("client.timeout must not be negative")
	}
	if c.Client.Requests < 0 {
		fail("client.requests must not be negative")
	}
	if _, err := loadbalance.Get(c.Client.Balancer); err != nil {
		fail("client.balancer: %w", err)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		fail("log.format %q must be console or json", c.Log.Format)
	}

	if c.RegistryEnabled() {
		if c.Registry.Service == "" {
			fail("registry.service is required with registry.endpoints")
		}
		if c.Registry.TTL < 1 {
			fail("registry.ttl must be at least 1 second")
		}
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
