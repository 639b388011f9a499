package config

import "github.com/teslashibe/go-soundmap/pkg/soundmatch"

// Default values.
const (
	DefaultSight            = soundmatch.DefaultSight
	DefaultAngleThreshold   = soundmatch.DefaultMatchingAngleThreshold
	DefaultSpawnDistance    = 0.25
	DefaultFallbackDistance = 0.5
	DefaultBind             = ":8080"
	DefaultServerURL        = "ws://127.0.0.1:8080/ws"
	DefaultHeartbeatMillis  = 5000
	DefaultFrameMillis      = 14
	DefaultHandshakeMillis  = 10000
	DefaultCue              = CueLog
	DefaultLogLevel         = "info"
	defaultConfigPath       = "~/.config/soundmap/config.toml"
	projectConfigName       = "soundmap.toml"
)

// Placement cue backends.
const (
	CueNone  = "none"
	CueLog   = "log"
	CueAplay = "aplay"
)

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Matching: Matching{
			Sight:          DefaultSight,
			AngleThreshold: DefaultAngleThreshold,
			Classes:        defaultClasses(),
		},
		Placement: Placement{
			SpawnDistance:    DefaultSpawnDistance,
			FallbackDistance: DefaultFallbackDistance,
			EmojiLabels:      []string{},
		},
		Server: Server{
			Bind: DefaultBind,
		},
		Headset: Headset{
			ServerURL:           DefaultServerURL,
			HeartbeatIntervalMS: DefaultHeartbeatMillis,
			FrameIntervalMS:     DefaultFrameMillis,
			HandshakeTimeoutMS:  DefaultHandshakeMillis,
			Cue:                 DefaultCue,
		},
		Logging: Logging{
			Level: DefaultLogLevel,
		},
	}
}

func defaultClasses() map[string]string {
	classes := make(map[string]string, len(soundmatch.DefaultClasses))
	for k, v := range soundmatch.DefaultClasses {
		classes[k] = v
	}
	return classes
}
