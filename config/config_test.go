package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reqrep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.RegistryEnabled())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
transport:
  kind: frame
server:
  port: 6000
  forever: false
  handler_timeout: 250ms
client:
  ports: [6000, 6001, 6002]
  timeout: 2s
  balancer: weighted_random
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "frame", cfg.Transport.Kind)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.False(t, cfg.Server.Forever)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.HandlerTimeout)
	assert.Equal(t, []int{6000, 6001, 6002}, cfg.Client.Ports)
	assert.Equal(t, 2*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "weighted_random", cfg.Client.Balancer)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultHost, cfg.Client.Host)
	assert.Equal(t, DefaultRequests, cfg.Client.Requests)
	assert.Equal(t, time.Second, cfg.Server.ProcessingDelay)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: 6000
client:
  requests: 2
`)
	t.Setenv("REQREP_SERVER_PORT", "7000")
	t.Setenv("REQREP_SERVER_HANDLER_TIMEOUT", "1s")
	t.Setenv("REQREP_CLIENT_PORTS", "7000,7001")
	t.Setenv("REQREP_REGISTRY_ENDPOINTS", "127.0.0.1:2379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Server.HandlerTimeout)
	assert.Equal(t, []int{7000, 7001}, cfg.Client.Ports)
	assert.Equal(t, 2, cfg.Client.Requests)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Registry.Endpoints)
	assert.True(t, cfg.RegistryEnabled())
}

func TestEnvListValues(t *testing.T) {
	t.Setenv("REQREP_CLIENT_PORTS", " 7000, 7001,,7002 ")
	t.Setenv("REQREP_REGISTRY_ENDPOINTS", "10.0.0.1:2379, 10.0.0.2:2379")
	t.Setenv("REQREP_REGISTRY_SERVICE", "echo")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []int{7000, 7001, 7002}, cfg.Client.Ports)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "echo", cfg.Registry.Service)
}

func TestEnvValue(t *testing.T) {
	l := NewLoader()

	key, value := l.envValue("REQREP_CLIENT_PORTS", "1,2")
	assert.Equal(t, "client.ports", key)
	assert.Equal(t, []any{"1", "2"}, value)

	key, value = l.envValue("REQREP_CLIENT_MESSAGE", "a,b")
	assert.Equal(t, "client.message", key)
	assert.Equal(t, "a,b", value)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"client port", func(c *Config) { c.Client.Ports = []int{5555, 0} }, "client.ports"},
		{"no ports", func(c *Config) { c.Client.Ports = nil }, "client.ports is empty"},
		{"handler", func(c *Config) { c.Server.Handler = "echo" }, "server.handler"},
		{"transport", func(c *Config) { c.Transport.Kind = "udp" }, "transport.kind"},
		{"codec", func(c *Config) { c.Transport.Codec = "msgpack" }, "transport.codec"},
		{"balancer", func(c *Config) { c.Client.Balancer = "random" }, "client.balancer"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"timeout", func(c *Config) { c.Client.Timeout = -time.Second }, "client.timeout"},
		{"burst", func(c *Config) { c.Server.RateLimit = 5 }, "server.burst"},
		{"registry ttl", func(c *Config) {
			c.Registry.Endpoints = []string{"127.0.0.1:2379"}
			c.Registry.TTL = 0
		}, "registry.ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestValidateReportsAllFields(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "log.format")
}

func TestRegistryWithoutPorts(t *testing.T) {
	cfg := Default()
	cfg.Client.Ports = nil
	cfg.Registry.Endpoints = []string{"127.0.0.1:2379"}
	assert.NoError(t, cfg.Validate())
}
