package soundmatch

import (
	"sort"
	"strings"
)

// DefaultClasses maps audio classifier labels to detector class names.
var DefaultClasses = map[string]string{
	"Speech":       "person",
	"Bark":         "dog",
	"Dog":          "dog",
	"Vehicle horn": "car",
	"Vehicle":      "car",
	"Siren":        "car",
}

// ClassMap is a fixed, case-insensitive label to class lookup.
// It is built once and never mutated, so it is safe to share.
type ClassMap struct {
	entries map[string]string
}

// NewClassMap builds a lookup from label -> detector class.
// Entries with an empty label or class are ignored.
func NewClassMap(m map[string]string) *ClassMap {
	entries := make(map[string]string, len(m))
	for label, class := range m {
		key := normalizeLabel(label)
		class = strings.TrimSpace(class)
		if key == "" || class == "" {
			continue
		}
		entries[key] = class
	}
	return &ClassMap{entries: entries}
}

// DefaultClassMap returns a ClassMap built from DefaultClasses.
func DefaultClassMap() *ClassMap {
	return NewClassMap(DefaultClasses)
}

// Lookup returns the detector class for an audio label.
func (c *ClassMap) Lookup(label string) (string, bool) {
	key := normalizeLabel(label)
	if key == "" {
		return "", false
	}
	class, ok := c.entries[key]
	return class, ok
}

// Len returns the number of mappings.
func (c *ClassMap) Len() int {
	return len(c.entries)
}

// Labels returns the normalized labels in sorted order.
func (c *ClassMap) Labels() []string {
	labels := make([]string, 0, len(c.entries))
	for label := range c.entries {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
