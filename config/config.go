// Package config loads brokerd's configuration, layering defaults, an
// optional YAML file, and environment variables, grounded on Hola's
// pkg/config (koanf + providers/{confmap,env,file} + parsers/yaml).
package config

import (
	"time"
)

// Config holds the full set of broker runtime settings.
type Config struct {
	NodeID            string              `koanf:"node_id"`
	LogLevel          string              `koanf:"log_level"`
	Transporter       string              `koanf:"transporter"` // "nats://..." or "" for no transporter (local-only)
	RequestTimeout    time.Duration       `koanf:"request_timeout"`
	RequestRetry      int                 `koanf:"request_retry"`
	MaxCallLevel      int                 `koanf:"max_call_level"`
	HeartbeatInterval time.Duration       `koanf:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration       `koanf:"heartbeat_timeout"`
	Registry          RegistryConfig      `koanf:"registry"`
	CircuitBreaker    CircuitBreakerConfig `koanf:"circuit_breaker"`
	Cacher            CacherConfig        `koanf:"cacher"`
	Serializer        string              `koanf:"serializer"` // "json" or "msgpack"
	Validation        bool                `koanf:"validation"`
	Metrics           MetricsConfig       `koanf:"metrics"`
	Statistics        bool                `koanf:"statistics"`
	InternalActions   bool                `koanf:"internal_actions"`
}

// RegistryConfig controls endpoint selection strategy and locality bias.
type RegistryConfig struct {
	Strategy    string `koanf:"strategy"` // "round_robin" or "random"
	PreferLocal bool   `koanf:"prefer_local"`
}

// CircuitBreakerConfig controls the per-endpoint breaker: trip threshold,
// half-open cooldown, and which failure classes count against it.
type CircuitBreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	MaxFailures      int64         `koanf:"max_failures"`
	HalfOpenTime     time.Duration `koanf:"half_open_time"`
	FailureOnTimeout bool          `koanf:"failure_on_timeout"`
	FailureOnReject  bool          `koanf:"failure_on_reject"`
}

// CacherConfig configures the action-result cache backend.
type CacherConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // "memory" or "redis"
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// MetricsConfig controls call-metrics sampling. Addr is loaded but not read
// by cmd/brokerd, which serves /metrics on its control API listener.
type MetricsConfig struct {
	Enabled bool    `koanf:"enabled"`
	Rate    float64 `koanf:"rate"`
	Addr    string  `koanf:"addr"` // not read by cmd/brokerd
}

// Validate checks the fields Moleculer itself treats as load-bearing.
func (c *Config) Validate() error {
	var errs []string
	if c.MaxCallLevel < 0 {
		errs = append(errs, "max_call_level must be >= 0")
	}
	if c.Metrics.Rate < 0 || c.Metrics.Rate > 1 {
		errs = append(errs, "metrics.rate must be within [0,1]")
	}
	if c.Registry.Strategy != "" && c.Registry.Strategy != "round_robin" && c.Registry.Strategy != "random" {
		errs = append(errs, "registry.strategy must be round_robin or random")
	}
	if c.Cacher.Enabled && c.Cacher.Driver != "memory" && c.Cacher.Driver != "redis" {
		errs = append(errs, "cacher.driver must be memory or redis")
	}
	if len(errs) == 0 {
		return nil
	}
	return &validationError{errs: errs}
}

type validationError struct{ errs []string }

func (e *validationError) Error() string {
	s := "invalid configuration:"
	for _, m := range e.errs {
		s += " " + m + ";"
	}
	return s
}
