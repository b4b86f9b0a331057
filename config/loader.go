package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "REQREP_"

var errReadBytesNotSupported = errors.New("config: map provider only supports Read")

// mapProvider feeds an already nested map to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

type LoaderOption func(*Loader)

// WithConfigFile loads path between the defaults and the environment.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.filePath = path }
}

func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load layers every source and returns the validated result.
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(mapProvider(defaultsMap(Default())), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}
	if err := l.k.Load(env.ProviderWithValue(l.envPrefix, ".", l.envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := l.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps REQREP_CLIENT_REQUESTS to client.requests. Only the first underscore
// separates the section, so field names keep theirs.
func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// listKeys hold comma separated values in the environment.
var listKeys = map[string]bool{
	"client.ports":       true,
	"registry.endpoints": true,
}

// envValue maps the key like envKey and splits list values, so
// REQREP_CLIENT_PORTS="7000, 7001" becomes []any{"7000", "7001"}.
func (l *Loader) envValue(key, value string) (string, any) {
	key = l.envKey(key)
	if !listKeys[key] {
		return key, value
	}

	items := make([]any, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Load reads the configuration from defaults, the optional file at path and the
// environment.
func Load(path string) (*Config, error) {
	return NewLoader(WithConfigFile(path)).Load()
}

func defaultsMap(c *Config) map[string]any {
	ports := make([]any, len(c.Client.Ports))
	for i, p := range c.Client.Ports {
		ports[i] = p
	}
	registry := map[string]any{
		"service": c.Registry.Service,
		"ttl":     c.Registry.TTL,
	}
	if len(c.Registry.Endpoints) > 0 {
		endpoints := make([]any, len(c.Registry.Endpoints))
		for i, e := range c.Registry.Endpoints {
			endpoints[i] = e
		}
		registry["endpoints"] = endpoints
	}

	return map[string]any{
		"transport": map[string]any{
			"kind":  c.Transport.Kind,
			"codec": c.Transport.Codec,
		},
		"server": map[string]any{
			"port":             c.Server.Port,
			"forever":          c.Server.Forever,
			"handler":          c.Server.Handler,
			"handler_timeout":  c.Server.HandlerTimeout,
			"rate_limit":       c.Server.RateLimit,
			"burst":            c.Server.Burst,
			"processing_delay": c.Server.ProcessingDelay,
		},
		"client": map[string]any{
			"host":     c.Client.Host,
			"ports":    ports,
			"timeout":  c.Client.Timeout,
			"requests": c.Client.Requests,
			"balancer": c.Client.Balancer,
			"message":  c.Client.Message,
		},
		"log": map[string]any{
			"level":       c.Log.Level,
			"format":      c.Log.Format,
			"development": c.Log.Development,
		},
		"registry": registry,
		"metrics": map[string]any{
			"addr": c.Metrics.Addr,
		},
	}
}
