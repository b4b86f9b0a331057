// Package config defines the reqrep configuration and loads it with koanf.
//
// Sources are layered, later ones overriding earlier ones:
//
//	defaults → YAML file (optional) → REQREP_* environment variables
//
// Environment names map onto keys by splitting the section from the field at the first
// underscore: REQREP_SERVER_HANDLER_TIMEOUT sets server.handler_timeout.
package config

import "time"

// Server handlers selectable by server.handler.
const (
	HandlerPrint   = "print"   // request written to stdout as indented JSON
	HandlerDefault = "default" // request logged, then processing_delay elapses
)

// Default values.
const (
	DefaultTransport = "zmq"
	DefaultCodec     = "json"

	DefaultPort     = 5555
	DefaultHost     = "localhost"
	DefaultRequests = 4
	DefaultMessage  = "Hello"
	DefaultTimeout  = 5 * time.Second
	DefaultBalancer = "round_robin"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultRegistryService = "reqrep"
	DefaultRegistryTTL     = 10
)

type Config struct {
	Transport TransportSection `koanf:"transport"`
	Server    ServerSection    `koanf:"server"`
	Client    ClientSection    `koanf:"client"`
	Log       LogSection       `koanf:"log"`
	Registry  RegistrySection  `koanf:"registry"`
	Metrics   MetricsSection   `koanf:"metrics"`
}

type TransportSection struct {
	Kind  string `koanf:"kind"`  // zmq or frame
	Codec string `koanf:"codec"` // payload codec, json
}

type ServerSection struct {
	Port    int    `koanf:"port"`
	Forever bool   `koanf:"forever"` // false serves a single request
	Handler string `koanf:"handler"` // print or default

	HandlerTimeout  time.Duration `koanf:"handler_timeout"`  // 0 disables
	RateLimit       float64       `koanf:"rate_limit"`       // requests per second, 0 disables
	Burst           int           `koanf:"burst"`
	ProcessingDelay time.Duration `koanf:"processing_delay"` // used by the default handler
}

type ClientSection struct {
	Host     string        `koanf:"host"`
	Ports    []int         `koanf:"ports"`
	Timeout  time.Duration `koanf:"timeout"` // acknowledgment deadline, 0 waits forever
	Requests int           `koanf:"requests"`
	Balancer string        `koanf:"balancer"`
	Message  string        `koanf:"message"`
}

type LogSection struct {
	Level       string `koanf:"level"`
	Format      string `koanf:"format"`
	Development bool   `koanf:"development"`
}

// RegistrySection enables etcd discovery when Endpoints is non-empty.
type RegistrySection struct {
	Endpoints []string `koanf:"endpoints"`
	Service   string   `koanf:"service"`
	TTL       int64    `koanf:"ttl"` // lease seconds
}

type MetricsSection struct {
	Addr string `koanf:"addr"` // empty disables the HTTP endpoint
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Transport: TransportSection{Kind: DefaultTransport, Codec: DefaultCodec},
		Server: ServerSection{
			Port:            DefaultPort,
			Forever:         true,
			Handler:         HandlerPrint,
			ProcessingDelay: time.Second,
		},
		Client: ClientSection{
			Host:     DefaultHost,
			Ports:    []int{DefaultPort},
			Timeout:  DefaultTimeout,
			Requests: DefaultRequests,
			Balancer: DefaultBalancer,
			Message:  DefaultMessage,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Registry: RegistrySection{
			Service: DefaultRegistryService,
			TTL:     DefaultRegistryTTL,
		},
	}
}

// RegistryEnabled reports whether discovery through etcd is configured.
func (c *Config) RegistryEnabled() bool {
	return len(c.Registry.Endpoints) > 0
}
