package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/teslashibe/go-soundmap/internal/config"
	"github.com/teslashibe/go-soundmap/pkg/markers"
	"github.com/teslashibe/go-soundmap/pkg/placement"
	"github.com/teslashibe/go-soundmap/pkg/protocol"
	"github.com/teslashibe/go-soundmap/pkg/soundmatch"
)

func newMatcher(cfg *config.Config, logger *slog.Logger) *soundmatch.Matcher {
	return soundmatch.NewMatcher(
		soundmatch.WithSight(cfg.Matching.Sight),
		soundmatch.WithMatchingAngleThreshold(cfg.Matching.AngleThreshold),
		soundmatch.WithClasses(soundmatch.NewClassMap(cfg.Matching.Classes)),
		soundmatch.WithLogger(logger),
	)
}

func placementOptions(cfg *config.Config, logger *slog.Logger) []placement.Option {
	return []placement.Option{
		placement.WithSpawnDistance(cfg.Placement.SpawnDistance),
		placement.WithFallbackDistance(cfg.Placement.FallbackDistance),
		placement.WithKindTable(markers.NewKindTable(cfg.Placement.EmojiLabels)),
		placement.WithLogger(logger),
	}
}

// relayBaseURL returns the relay's HTTP root. An explicit value wins;
// otherwise it is derived from the headset server URL. WebSocket paths
// are dropped.
func relayBaseURL(explicit string, cfg *config.Config) (string, error) {
	raw := strings.TrimSpace(explicit)
	if raw == "" {
		raw = cfg.Headset.ServerURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse relay url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("relay url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", raw)
	}
	if strings.HasPrefix(u.Path, "/ws") {
		u.Path = ""
	}
	u.RawQuery = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// parseTag parses "label:score" or a bare label (score 1).
func parseTag(value string) (protocol.TagItem, error) {
	value = strings.TrimSpace(value)
	label, scoreText, hasScore := value, "", false
	if i := strings.LastIndex(value, ":"); i >= 0 {
		label, scoreText, hasScore = value[:i], value[i+1:], true
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return protocol.TagItem{}, fmt.Errorf("tag %q has no label", value)
	}
	tag := protocol.TagItem{Label: label, Score: 1}
	if hasScore {
		score, err := strconv.ParseFloat(strings.TrimSpace(scoreText), 64)
		if err != nil {
			return protocol.TagItem{}, fmt.Errorf("tag %q: invalid score: %w", value, err)
		}
		tag.Score = score
	}
	return tag, nil
}

func formatAngle(angle float64) string {
	if angle < 0 {
		return "-"
	}
	return strconv.FormatFloat(angle, 'f', 1, 64)
}

func formatNotified(counts []int) string {
	if len(counts) == 0 {
		return "-"
	}
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
