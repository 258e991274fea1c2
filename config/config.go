// Package config loads and validates the Connect engine configuration.
//
// The configuration file describes the worker scripts the engine may run,
// the plots whose stream ids the engine buffers, and the transport/metrics
// settings. Layout concerns beyond plot stream ids belong to the display
// layer and are not modeled here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nominal-io/connect/errors"
)

// Script type constants
const (
	ScriptTypeDiscrete  = "discrete"  // one-shot worker producing a terminal result
	ScriptTypeStreaming = "streaming" // long-running worker emitting telemetry
)

// FunctionConfig describes a callable function within a script.
type FunctionConfig struct {
	Name    string `yaml:"name"`
	Display string `yaml:"display,omitempty"`
}

// ScriptConfig describes a worker script: where it lives, how it runs,
// and which functions it declares.
type ScriptConfig struct {
	Name      string           `yaml:"name"`
	Path      string           `yaml:"path"`
	Type      string           `yaml:"type"`
	Functions []FunctionConfig `yaml:"functions,omitempty"`
}

// PlotConfig describes a plot the display layer renders. The engine only
// cares about the stream id: it is the routing key for scalar telemetry.
type PlotConfig struct {
	Title    string `yaml:"title,omitempty"`
	StreamID string `yaml:"stream_id"`
}

// NATSConfig defines the telemetry transport endpoint.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig defines the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	Port    int  `yaml:"port,omitempty"`
}

// DebugConfig holds debug logging toggles.
type DebugConfig struct {
	Streaming bool `yaml:"streaming,omitempty"`
}

// Config represents the complete engine configuration.
type Config struct {
	Title   string        `yaml:"title,omitempty"`
	NATS    NATSConfig    `yaml:"nats,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Debug   DebugConfig   `yaml:"debug,omitempty"`
	Scripts []ScriptConfig `yaml:"scripts,omitempty"`
	Plots   []PlotConfig   `yaml:"plots,omitempty"`

	// dir is the directory of the loaded config file; script paths
	// resolve relative to it.
	dir string
}

// Default values applied by Load when fields are absent.
const (
	DefaultNATSURL     = "nats://127.0.0.1:4222"
	DefaultNATSSubject = "connect.telemetry"
	DefaultMetricsPort = 9090
)

// Load reads and parses the configuration file at path, applies defaults,
// and records the file's directory for script path resolution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	cfg.applyDefaults()
	cfg.dir = filepath.Dir(path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills in defaults for absent fields.
func (c *Config) applyDefaults() {
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Scripts))
	for i, s := range c.Scripts {
		if s.Name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("script %d has no name", i),
				"Config", "Validate", "script validation")
		}
		if s.Path == "" {
			return errors.WrapInvalid(
				fmt.Errorf("script %q has no path", s.Name),
				"Config", "Validate", "script validation")
		}
		if s.Type != ScriptTypeDiscrete && s.Type != ScriptTypeStreaming {
			return errors.WrapInvalid(
				fmt.Errorf("script %q has unknown type %q", s.Name, s.Type),
				"Config", "Validate", "script validation")
		}
		if seen[s.Name] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate script name %q", s.Name),
				"Config", "Validate", "script validation")
		}
		seen[s.Name] = true
	}

	for i, p := range c.Plots {
		if p.StreamID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("plot %d has no stream_id", i),
				"Config", "Validate", "plot validation")
		}
	}

	return nil
}

// Dir returns the directory of the loaded config file, or "." when the
// config was not loaded from a file.
func (c *Config) Dir() string {
	if c.dir == "" {
		return "."
	}
	return c.dir
}

// SetDir overrides the config directory. Used by tests and by callers
// that build a Config in memory.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// ScriptPath resolves a script's configured path against the config directory.
func (c *Config) ScriptPath(s ScriptConfig) string {
	if filepath.IsAbs(s.Path) {
		return s.Path
	}
	return filepath.Join(c.Dir(), s.Path)
}

// Script returns the script config with the given name.
func (c *Config) Script(name string) (ScriptConfig, bool) {
	for _, s := range c.Scripts {
		if s.Name == name {
			return s, true
		}
	}
	return ScriptConfig{}, false
}

// StreamingScripts returns the configured streaming-type scripts in order.
func (c *Config) StreamingScripts() []ScriptConfig {
	var out []ScriptConfig
	for _, s := range c.Scripts {
		if s.Type == ScriptTypeStreaming {
			out = append(out, s)
		}
	}
	return out
}

// PlotStreamIDs returns the set of stream ids the configured plots consume.
// These are the recognized routing keys for scalar telemetry.
func (c *Config) PlotStreamIDs() map[string]bool {
	ids := make(map[string]bool, len(c.Plots))
	for _, p := range c.Plots {
		ids[p.StreamID] = true
	}
	return ids
}
