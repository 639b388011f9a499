package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError reports an unusable setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validatePlacement(); err != nil {
		return err
	}
	if err := c.validateHeadset(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateMatching() error {
	if c.Matching.Sight <= 0 || c.Matching.Sight > 180 {
		return invalid("matching.sight", "must be in (0, 180], got %d", c.Matching.Sight)
	}
	if c.Matching.AngleThreshold < 0 || c.Matching.AngleThreshold > 180 {
		return invalid("matching.angle_threshold", "must be in [0, 180], got %g", c.Matching.AngleThreshold)
	}
	if len(c.Matching.Classes) == 0 {
		return invalid("matching.classes", "must map at least one label")
	}
	for label, class := range c.Matching.Classes {
		if strings.TrimSpace(label) == "" || strings.TrimSpace(class) == "" {
			return invalid("matching.classes", "has an empty label or class (%q = %q)", label, class)
		}
	}
	return nil
}

func (c *Config) validatePlacement() error {
	if c.Placement.SpawnDistance <= 0 {
		return invalid("placement.spawn_distance", "must be positive")
	}
	if c.Placement.FallbackDistance <= 0 {
		return invalid("placement.fallback_distance", "must be positive")
	}
	return nil
}

func (c *Config) validateHeadset() error {
	if c.Headset.HeartbeatIntervalMS <= 0 {
		return invalid("headset.heartbeat_interval_ms", "must be positive")
	}
	if c.Headset.FrameIntervalMS <= 0 {
		return invalid("headset.frame_interval_ms", "must be positive")
	}
	if c.Headset.HandshakeTimeoutMS <= 0 {
		return invalid("headset.handshake_timeout_ms", "must be positive")
	}
	switch c.Headset.Cue {
	case CueNone, CueLog, CueAplay:
	default:
		return invalid("headset.cue", "must be none, log or aplay, got %q", c.Headset.Cue)
	}
	if c.Headset.ServerURL != "" {
		u, err := url.Parse(c.Headset.ServerURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return invalid("headset.server_url", "must be a ws:// or wss:// url, got %q", c.Headset.ServerURL)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return invalid("logging.format", "must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
