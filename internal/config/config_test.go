package config_test

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-soundmap/internal/config"
)

// isolate clears every override and points HOME at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{config.EnvServerURL, config.EnvDevice, config.EnvLogLevel, config.EnvPort} {
		t.Setenv(key, "")
	}
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(home, ".config", "soundmap", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}

	def := config.Default()
	if cfg.Matching.Sight != 50 || cfg.Matching.AngleThreshold != 30 {
		t.Fatalf("unexpected matching defaults: %+v", cfg.Matching)
	}
	if !maps.Equal(cfg.Matching.Classes, def.Matching.Classes) {
		t.Fatalf("classes = %v, want defaults", cfg.Matching.Classes)
	}
	if cfg.Placement.SpawnDistance != 0.25 || cfg.Placement.FallbackDistance != 0.5 {
		t.Fatalf("unexpected placement defaults: %+v", cfg.Placement)
	}
	if got := cfg.Headset.HeartbeatInterval().Seconds(); got != 5 {
		t.Fatalf("heartbeat = %vs, want 5s", got)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("Load resolved %q exists=%v, want %q", resolved, exists, path)
	}

	def := config.Default()
	if cfg.Matching.Sight != def.Matching.Sight ||
		cfg.Matching.AngleThreshold != def.Matching.AngleThreshold ||
		!maps.Equal(cfg.Matching.Classes, def.Matching.Classes) {
		t.Errorf("sample matching = %+v, want %+v", cfg.Matching, def.Matching)
	}
	if cfg.Placement.SpawnDistance != def.Placement.SpawnDistance ||
		cfg.Placement.FallbackDistance != def.Placement.FallbackDistance ||
		len(cfg.Placement.EmojiLabels) != 0 {
		t.Errorf("sample placement = %+v, want %+v", cfg.Placement, def.Placement)
	}
	if cfg.Server != def.Server || cfg.Headset != def.Headset {
		t.Errorf("sample server/headset = %+v %+v", cfg.Server, cfg.Headset)
	}
}

func TestClassesTableReplacesDefaults(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
[matching.classes]
"Music" = "speaker"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Matching.Classes) != 1 || cfg.Matching.Classes["Music"] != "speaker" {
		t.Fatalf("classes = %v, want only Music", cfg.Matching.Classes)
	}
}

func TestPartialFileKeepsOtherDefaults(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
[matching]
sight = 60

[placement]
emoji_labels = ["Bark", "Siren"]
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Matching.Sight != 60 {
		t.Errorf("sight = %d, want 60", cfg.Matching.Sight)
	}
	if cfg.Matching.AngleThreshold != 30 {
		t.Errorf("threshold = %v, want default 30", cfg.Matching.AngleThreshold)
	}
	if len(cfg.Matching.Classes) != 6 {
		t.Errorf("classes = %v, want the 6 defaults", cfg.Matching.Classes)
	}
	if len(cfg.Placement.EmojiLabels) != 2 {
		t.Errorf("emoji labels = %v", cfg.Placement.EmojiLabels)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(config.EnvServerURL, "wss://relay.example:9443/ws")
	t.Setenv(config.EnvDevice, "quest-lab")
	t.Setenv(config.EnvLogLevel, "DEBUG")
	t.Setenv(config.EnvPort, "9090")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Headset.ServerURL != "wss://relay.example:9443/ws" {
		t.Errorf("server url = %q", cfg.Headset.ServerURL)
	}
	if cfg.Headset.Device != "quest-lab" {
		t.Errorf("device = %q", cfg.Headset.Device)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Server.Bind != ":9090" {
		t.Errorf("bind = %q, want :9090", cfg.Server.Bind)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	isolate(t)

	if _, _, _, err := config.Load(writeConfig(t, "[matching\nsight = 1")); err == nil {
		t.Error("expected a parse error")
	}

	_, _, _, err := config.Load(writeConfig(t, "[matching]\nsight = 0\n"))
	var verr *config.ValidationError
	if !errors.As(err, &verr) || verr.Field != "matching.sight" {
		t.Errorf("Load error = %v, want matching.sight validation error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"sight zero", func(c *config.Config) { c.Matching.Sight = 0 }, "matching.sight"},
		{"sight too wide", func(c *config.Config) { c.Matching.Sight = 181 }, "matching.sight"},
		{"sight 180", func(c *config.Config) { c.Matching.Sight = 180 }, ""},
		{"negative threshold", func(c *config.Config) { c.Matching.AngleThreshold = -1 }, "matching.angle_threshold"},
		{"zero threshold", func(c *config.Config) { c.Matching.AngleThreshold = 0 }, ""},
		{"no classes", func(c *config.Config) { c.Matching.Classes = nil }, "matching.classes"},
		{"empty class", func(c *config.Config) { c.Matching.Classes = map[string]string{"Bark": " "} }, "matching.classes"},
		{"spawn distance", func(c *config.Config) { c.Placement.SpawnDistance = 0 }, "placement.spawn_distance"},
		{"fallback distance", func(c *config.Config) { c.Placement.FallbackDistance = -0.5 }, "placement.fallback_distance"},
		{"heartbeat", func(c *config.Config) { c.Headset.HeartbeatIntervalMS = 0 }, "headset.heartbeat_interval_ms"},
		{"frame interval", func(c *config.Config) { c.Headset.FrameIntervalMS = -1 }, "headset.frame_interval_ms"},
		{"handshake", func(c *config.Config) { c.Headset.HandshakeTimeoutMS = 0 }, "headset.handshake_timeout_ms"},
		{"http url", func(c *config.Config) { c.Headset.ServerURL = "http://host/ws" }, "headset.server_url"},
		{"unknown cue", func(c *config.Config) { c.Headset.Cue = "beep" }, "headset.cue"},
		{"empty url", func(c *config.Config) { c.Headset.ServerURL = "" }, ""},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			var verr *config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should name the field", err)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	cfg := config.Default()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded config does not parse: %v", err)
	}
	if decoded.Matching.Classes["Vehicle horn"] != "car" {
		t.Errorf("encoded classes = %v", decoded.Matching.Classes)
	}
}
