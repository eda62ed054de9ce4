package config

import (
	"path/filepath"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// Validate checks that required settings are present and sane.
// Failures here are fatal at startup.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return errors.New("DATA_ROOT is required")
	}
	if !filepath.IsAbs(c.DataRoot) {
		return errors.Newf("DATA_ROOT must be an absolute path, got %q", c.DataRoot)
	}

	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if !filepath.IsAbs(c.DBPath) {
		return errors.Newf("DB_PATH must be an absolute path, got %q", c.DBPath)
	}

	if c.PollIntervalMS <= 0 {
		return errors.Newf("POLL_INTERVAL_MS must be positive, got %d", c.PollIntervalMS)
	}
	if c.HeartbeatStaleMS <= 0 {
		return errors.Newf("HEARTBEAT_STALE_MS must be positive, got %d", c.HeartbeatStaleMS)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.Newf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}

	return nil
}
