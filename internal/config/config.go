// Package config loads graphql-ws handler configuration. The only
// protocol-relevant knob is the keep-alive interval (spec.md §6); the rest
// of this package follows the teacher's Default()/Load() convention so the
// handler is never left unconfigured.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
}

// SubscriptionsConfig controls the protocol handler's keep-alive ticker.
type SubscriptionsConfig struct {
	// KeepAliveInterval is parsed from keepAliveIntervalMs in the YAML
	// document. Zero or negative disables the keep-alive ticker
	// (spec.md §3 invariant #3, §4.C).
	KeepAliveInterval time.Duration `yaml:"-"`
	KeepAliveMs       int64         `yaml:"keepAliveIntervalMs"`
}

// Default returns a configuration with keep-alive disabled.
func Default() *Config {
	return &Config{
		Subscriptions: SubscriptionsConfig{
			KeepAliveInterval: 0,
		},
	}
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.Subscriptions.KeepAliveInterval = time.Duration(cfg.Subscriptions.KeepAliveMs) * time.Millisecond
	return cfg, nil
}
