package config

import (
	"github.com/matgreaves/brokerd/broker"
	"github.com/matgreaves/brokerd/transit"
)

// BrokerConfig adapts Config to broker.Config, wiring the registry
// selection strategy by name.
func (c *Config) BrokerConfig() broker.Config {
	strategyFn := func() broker.Strategy { return broker.NewRoundRobin() }
	if c.Registry.Strategy == "random" {
		strategyFn = func() broker.Strategy { return broker.NewRandom() }
	}
	return broker.Config{
		NodeID:            c.NodeID,
		LogLevel:          c.LogLevel,
		RequestTimeout:    c.RequestTimeout,
		RequestRetry:      c.RequestRetry,
		MaxCallLevel:      c.MaxCallLevel,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatTimeout:  c.HeartbeatTimeout,
		Registry: broker.RegistryConfig{
			PreferLocal: c.Registry.PreferLocal,
			NewStrategy: strategyFn,
		},
		CircuitBreaker: broker.CircuitBreakerConfig{
			Enabled:          c.CircuitBreaker.Enabled,
			MaxFailures:      c.CircuitBreaker.MaxFailures,
			HalfOpenTime:     c.CircuitBreaker.HalfOpenTime,
			FailureOnTimeout: c.CircuitBreaker.FailureOnTimeout,
			FailureOnReject:  c.CircuitBreaker.FailureOnReject,
		},
		Metrics:         c.Metrics.Enabled,
		MetricsRate:     c.Metrics.Rate,
		Statistics:      c.Statistics,
		InternalActions: c.InternalActions,
	}
}

// TransitConfig adapts Config to transit.Config.
func (c *Config) TransitConfig() transit.Config {
	return transit.Config{
		NodeID:            c.NodeID,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatTimeout:  c.HeartbeatTimeout,
	}
}
