package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rogermt/forgesyte-sub004/errors"
)

const (
	// DefaultPollIntervalMS is the worker poll interval when unconfigured
	DefaultPollIntervalMS = 500

	// DefaultHeartbeatStaleMS is the heartbeat staleness threshold when
	// unconfigured (10x the default poll interval)
	DefaultHeartbeatStaleMS = 5000

	// DefaultMaxUploadBytes caps uploads at 512 MiB
	DefaultMaxUploadBytes = 512 << 20

	// DefaultHTTPAddr is the default HTTP listen address
	DefaultHTTPAddr = ":8080"
)

// ConfigFileName is the local config file searched for by walking up the
// directory tree. File values take precedence over environment variables.
const ConfigFileName = "forgesyte.toml"

// Load reads the Forgesyte configuration using Viper.
// Precedence (lowest to highest): defaults < environment < forgesyte.toml.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)
	mergeConfigFile(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, skipping the
// upward search. Environment variables still apply below the file.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("poll_interval_ms", DefaultPollIntervalMS)
	v.SetDefault("heartbeat_stale_ms", DefaultHeartbeatStaleMS)
	v.SetDefault("max_upload_bytes", int64(DefaultMaxUploadBytes))
	v.SetDefault("plugin_search_path", "")
}

// bindEnvVars binds each config key to its documented environment variable.
// Names are flat (DATA_ROOT, not FORGESYTE_DATA_ROOT) because deployments
// already export them under these names.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("data_root", "DATA_ROOT")
	v.BindEnv("db_path", "DB_PATH")
	v.BindEnv("http_addr", "HTTP_ADDR")
	v.BindEnv("poll_interval_ms", "POLL_INTERVAL_MS")
	v.BindEnv("heartbeat_stale_ms", "HEARTBEAT_STALE_MS")
	v.BindEnv("plugin_search_path", "PLUGIN_SEARCH_PATH")
	v.BindEnv("max_upload_bytes", "MAX_UPLOAD_BYTES")
}

// findProjectConfig searches for forgesyte.toml by walking up the directory
// tree. Returns the path to the first config file found, or empty string.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, stop searching
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFile merges the project config file (if any) over the values
// already bound. File values override environment variables.
func mergeConfigFile(v *viper.Viper) {
	configPath := findProjectConfig()
	if configPath == "" {
		return
	}

	tempViper := viper.New()
	tempViper.SetConfigFile(configPath)
	tempViper.SetConfigType("toml")
	if err := tempViper.ReadInConfig(); err != nil {
		return
	}

	for key, value := range tempViper.AllSettings() {
		v.Set(key, value)
	}
}

// PluginRoots splits PluginSearchPath into its colon-separated components,
// dropping empty segments.
func (c *Config) PluginRoots() []string {
	if c.PluginSearchPath == "" {
		return nil
	}
	var roots []string
	for _, root := range strings.Split(c.PluginSearchPath, ":") {
		if root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}
