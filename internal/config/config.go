// Package config loads soundmap settings from TOML with environment
// overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Matching contains sound to object matching parameters.
type Matching struct {
	Sight          int               `toml:"sight"`
	AngleThreshold float64           `toml:"angle_threshold"`
	Classes        map[string]string `toml:"classes"`
}

// Placement contains marker placement parameters.
type Placement struct {
	SpawnDistance    float64  `toml:"spawn_distance"`
	FallbackDistance float64  `toml:"fallback_distance"`
	EmojiLabels      []string `toml:"emoji_labels"`
}

// Server contains relay server settings.
type Server struct {
	Bind        string `toml:"bind"`
	LogRequests bool   `toml:"log_requests"`
}

// Headset contains headset client settings.
type Headset struct {
	ServerURL           string `toml:"server_url"`
	Device              string `toml:"device"`
	HeartbeatIntervalMS int    `toml:"heartbeat_interval_ms"`
	FrameIntervalMS     int    `toml:"frame_interval_ms"`
	HandshakeTimeoutMS  int    `toml:"handshake_timeout_ms"`
	DashboardBind       string `toml:"dashboard_bind"`
	Cue                 string `toml:"cue"`
	CueDevice           string `toml:"cue_device"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full soundmap configuration.
type Config struct {
	Matching  Matching  `toml:"matching"`
	Placement Placement `toml:"placement"`
	Server    Server    `toml:"server"`
	Headset   Headset   `toml:"headset"`
	Logging   Logging   `toml:"logging"`
}

// HeartbeatInterval returns the ack period.
func (h Headset) HeartbeatInterval() time.Duration {
	return time.Duration(h.HeartbeatIntervalMS) * time.Millisecond
}

// FrameInterval returns the placement tick period.
func (h Headset) FrameInterval() time.Duration {
	return time.Duration(h.FrameIntervalMS) * time.Millisecond
}

// HandshakeTimeout returns the WebSocket handshake bound.
func (h Headset) HandshakeTimeout() time.Duration {
	return time.Duration(h.HandshakeTimeoutMS) * time.Millisecond
}

// DefaultConfigPath returns the per-user config location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads configuration from path, or from the default locations when
// path is empty. A missing file yields defaults. It returns the resolved
// path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// A [matching.classes] table replaces the defaults instead of
		// merging into them.
		cfg.Matching.Classes = nil

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Matching.Classes == nil {
			cfg.Matching.Classes = defaultClasses()
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Headset.ServerURL = strings.TrimSpace(c.Headset.ServerURL)
	c.Headset.DashboardBind = strings.TrimSpace(c.Headset.DashboardBind)
	c.Headset.Cue = strings.ToLower(strings.TrimSpace(c.Headset.Cue))
	if c.Headset.Cue == "" {
		c.Headset.Cue = CueLog
	}
	if c.Placement.EmojiLabels == nil {
		c.Placement.EmojiLabels = []string{}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath resolves ~ and makes pathValue absolute.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
