// Package config resolves Forgesyte startup configuration from environment
// variables and an optional local forgesyte.toml file.
package config

import "time"

// Config represents the core Forgesyte configuration.
// Settings are resolved once at startup and never reloaded.
type Config struct {
	// DataRoot is the absolute directory holding input and output blobs
	DataRoot string `mapstructure:"data_root"`

	// DBPath is the absolute path of the SQLite job database
	DBPath string `mapstructure:"db_path"`

	// HTTPAddr is the listen address for the HTTP server (default ":8080")
	HTTPAddr string `mapstructure:"http_addr"`

	// PollIntervalMS is how often the worker polls for pending jobs
	PollIntervalMS int `mapstructure:"poll_interval_ms"`

	// HeartbeatStaleMS is the age after which the worker heartbeat is
	// considered stale by the health endpoint
	HeartbeatStaleMS int `mapstructure:"heartbeat_stale_ms"`

	// PluginSearchPath is a colon-separated list of plugin roots
	PluginSearchPath string `mapstructure:"plugin_search_path"`

	// MaxUploadBytes caps the size of a single multipart upload
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// PollInterval returns the worker poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// HeartbeatStale returns the heartbeat staleness threshold as a duration
func (c *Config) HeartbeatStale() time.Duration {
	return time.Duration(c.HeartbeatStaleMS) * time.Millisecond
}
