// Package config provides configuration loading for Chain Gate.
package config

import (
	"time"
)

// Config is the top-level configuration for the chain-gate server.
type Config struct {
	// Server configures the stdio front and the admin HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Engine configures the dispatch engine.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// SideChannel configures where observability-group metadata is
	// recorded.
	SideChannel SideChannelConfig `yaml:"side_channel" mapstructure:"side_channel"`

	// Interceptors is the path to the interceptor definitions YAML file.
	// Optional: when empty, only programmatically registered interceptors
	// are available.
	Interceptors string `yaml:"interceptors" mapstructure:"interceptors"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the listeners.
type ServerConfig struct {
	// Name is the server name reported in the initialize handshake.
	Name string `yaml:"name" mapstructure:"name"`
	// AdminAddr is the listen address for /metrics and /health.
	AdminAddr string `yaml:"admin_addr" mapstructure:"admin_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// Tracing enables the stdout trace exporter.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
}

// EngineConfig configures dispatch behavior.
type EngineConfig struct {
	// ValidationConcurrency caps how many validators run at once per
	// chain. 0 means unbounded.
	ValidationConcurrency int `yaml:"validation_concurrency" mapstructure:"validation_concurrency" validate:"gte=0"`
	// ShutdownGrace bounds how long shutdown waits for in-flight
	// observability tasks (e.g. "10s").
	ShutdownGrace string `yaml:"shutdown_grace" mapstructure:"shutdown_grace" validate:"omitempty,duration"`
	// ListPageSize is the page size for interceptors/list.
	ListPageSize int `yaml:"list_page_size" mapstructure:"list_page_size" validate:"gte=0"`
}

// SideChannelConfig configures the observability metadata sink.
type SideChannelConfig struct {
	// Output selects the sink: "memory" or "file://<absolute-dir>".
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,sidechannel_output"`
	// RetentionDays is how many days of file sink output to keep.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"gte=0"`
	// MaxFileSizeMB is the file sink rotation threshold.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"gte=0"`
	// MemoryCapacity bounds the memory sink's entry count.
	MemoryCapacity int `yaml:"memory_capacity" mapstructure:"memory_capacity" validate:"gte=0"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	// Bind the admin listener to localhost only; users who need network
	// access must set admin_addr explicitly.
	if c.Server.Name == "" {
		c.Server.Name = "chain-gate"
	}
	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = "127.0.0.1:9180"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Engine.ShutdownGrace == "" {
		c.Engine.ShutdownGrace = "10s"
	}
	if c.Engine.ListPageSize == 0 {
		c.Engine.ListPageSize = 50
	}
	if c.SideChannel.Output == "" {
		c.SideChannel.Output = "memory"
	}
	if c.SideChannel.RetentionDays == 0 {
		c.SideChannel.RetentionDays = 7
	}
	if c.SideChannel.MaxFileSizeMB == 0 {
		c.SideChannel.MaxFileSizeMB = 100
	}
	if c.SideChannel.MemoryCapacity == 0 {
		c.SideChannel.MemoryCapacity = 1000
	}
}

// SetDevDefaults applies permissive development defaults. Call after CLI
// flags may have toggled DevMode.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	c.Server.Tracing = true
}

// ShutdownGrace parses the configured grace period. Validation guarantees
// the string parses; the zero fallback guards direct construction in tests.
func (c *Config) ShutdownGrace() time.Duration {
	d, err := time.ParseDuration(c.Engine.ShutdownGrace)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
