package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BROKER_"

// Loader layers defaults -> YAML file -> environment variables, matching
// Hola's pkg/config.Loader precedence exactly.
type Loader struct {
	k          *koanf.Koanf
	configPath string
	envPrefix  string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPath sets the YAML file path (default "brokerd.yaml"). When
// $BROKER_CONFIG_PATH is set it takes precedence over this path. The file
// is optional.
func WithConfigPath(path string) LoaderOption {
	return func(l *Loader) { l.configPath = path }
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// NewLoader builds a Loader with brokerd's default search path and prefix.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k:          koanf.New("."),
		configPath: "brokerd.yaml",
		envPrefix:  envPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load layers defaults, an optional YAML file, and environment overrides
// (in that precedence order) into a validated Config.
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			cfg.NodeID = strings.ToLower(h)
		} else {
			cfg.NodeID = "local"
		}
	}
	return &cfg, nil
}

func (l *Loader) loadConfigFile() error {
	path := l.configPath
	if env := os.Getenv(l.envPrefix + "CONFIG_PATH"); env != "" {
		path = env
	}
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %q not found, using defaults/env only", path)
	}
	return l.k.Load(file.Provider(path), yaml.Parser())
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		for _, section := range []string{"registry", "circuit_breaker", "cacher", "metrics"} {
			if strings.HasPrefix(key, section+"_") {
				return section + "." + strings.TrimPrefix(key, section+"_")
			}
		}
		return key
	}), nil)
}

// defaults returns the broker's out-of-the-box settings: heartbeatInterval
// 10s, heartbeatTimeout 30s, maxCallLevel unlimited (0), registry
// round-robin + preferLocal, circuit breaker disabled with maxFailures 5 /
// halfOpenTime 10s / both failure flags on.
func defaults() map[string]any {
	return map[string]any{
		"log_level":                        "info",
		"transporter":                      "",
		"request_timeout":                  0,
		"request_retry":                    0,
		"max_call_level":                   0,
		"heartbeat_interval":               10 * time.Second,
		"heartbeat_timeout":                30 * time.Second,
		"registry.strategy":                "round_robin",
		"registry.prefer_local":            true,
		"circuit_breaker.enabled":          false,
		"circuit_breaker.max_failures":     5,
		"circuit_breaker.half_open_time":   10 * time.Second,
		"circuit_breaker.failure_on_timeout": true,
		"circuit_breaker.failure_on_reject":  true,
		"cacher.enabled":                   false,
		"cacher.driver":                    "memory",
		"cacher.addr":                      "localhost:6379",
		"cacher.db":                        0,
		"cacher.default_ttl":               5 * time.Minute,
		"cacher.max_entries":               100000,
		"serializer":                       "json",
		"validation":                       true,
		"metrics.enabled":                  false,
		"metrics.rate":                     1.0,
		"metrics.addr":                     ":9642",
		"statistics":                       false,
		"internal_actions":                 true,
	}
}

// MustLoad loads or panics, mirroring Hola's MustLoad convenience wrapper.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}
