package config

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg:  Config{Registry: RegistryConfig{Strategy: "round_robin"}},
		},
		{
			name:    "negative max call level",
			cfg:     Config{MaxCallLevel: -1},
			wantErr: true,
		},
		{
			name:    "metrics rate out of range",
			cfg:     Config{Metrics: MetricsConfig{Rate: 1.5}},
			wantErr: true,
		},
		{
			name:    "bad registry strategy",
			cfg:     Config{Registry: RegistryConfig{Strategy: "least-conns"}},
			wantErr: true,
		},
		{
			name:    "bad cacher driver",
			cfg:     Config{Cacher: CacherConfig{Enabled: true, Driver: "memcached"}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := NewLoader(WithConfigPath("")).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HeartbeatInterval.Seconds() != 10 {
		t.Errorf("HeartbeatInterval = %v, want 10s", cfg.HeartbeatInterval)
	}
	if cfg.HeartbeatTimeout.Seconds() != 30 {
		t.Errorf("HeartbeatTimeout = %v, want 30s", cfg.HeartbeatTimeout)
	}
	if !cfg.Registry.PreferLocal {
		t.Errorf("Registry.PreferLocal = false, want true")
	}
	if cfg.CircuitBreaker.Enabled {
		t.Errorf("CircuitBreaker.Enabled = true, want false (matches Moleculer's own default)")
	}
	if cfg.NodeID == "" {
		t.Errorf("NodeID should default to the lowercased hostname, got empty")
	}
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Setenv("BROKER_MAX_CALL_LEVEL", "7")
	t.Setenv("BROKER_REGISTRY_STRATEGY", "random")
	cfg, err := NewLoader(WithConfigPath("")).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxCallLevel != 7 {
		t.Errorf("MaxCallLevel = %d, want 7 (env override)", cfg.MaxCallLevel)
	}
	if cfg.Registry.Strategy != "random" {
		t.Errorf("Registry.Strategy = %q, want random (env override)", cfg.Registry.Strategy)
	}
}
