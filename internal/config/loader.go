package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for chain-gate.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("chain-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: CHAIN_GATE_SERVER_ADMIN_ADDR
	viper.SetEnvPrefix("CHAIN_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a chain-gate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".chain-gate"),
		"/etc/chain-gate",
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// chain-gate.yaml or .yml.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, name := range []string{"chain-gate.yaml", "chain-gate.yml"} {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys so environment overrides work
// without a config file. Viper only auto-binds keys it has seen.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.name")
	_ = viper.BindEnv("server.admin_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tracing")

	_ = viper.BindEnv("engine.validation_concurrency")
	_ = viper.BindEnv("engine.shutdown_grace")
	_ = viper.BindEnv("engine.list_page_size")

	_ = viper.BindEnv("side_channel.output")
	_ = viper.BindEnv("side_channel.retention_days")
	_ = viper.BindEnv("side_channel.max_file_size_mb")
	_ = viper.BindEnv("side_channel.memory_capacity")

	_ = viper.BindEnv("interceptors")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, applies dev defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or an empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
