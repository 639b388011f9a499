package config

import (
	"os"
	"strings"
)

// Environment overrides.
const (
	EnvServerURL = "SOUNDMAP_SERVER_URL"
	EnvDevice    = "SOUNDMAP_DEVICE"
	EnvLogLevel  = "SOUNDMAP_LOG_LEVEL"
	EnvPort      = "PORT"
)

// applyEnv overrides file values with any set environment variables.
func applyEnv(c *Config) {
	c.Headset.ServerURL = envOr(EnvServerURL, c.Headset.ServerURL)
	c.Headset.Device = envOr(EnvDevice, c.Headset.Device)
	c.Logging.Level = envOr(EnvLogLevel, c.Logging.Level)
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		c.Server.Bind = ":" + port
	}
}

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
