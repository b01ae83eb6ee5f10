// Package featureflags gates optional features per user.
package featureflags

import (
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Flags known to the application.
const (
	Stories     = "stories"
	PopularFeed = "popular_feed"
)

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "stories=on,popular_feed=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled reports whether a flag is on for username. Accepted values are
// on/true/1, off/false/0 and N% for a deterministic rollout by username.
// Unknown flags are off; a nil Manager enables everything.
func (m *Manager) Enabled(name, username string) bool {
	if m == nil {
		return true
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, ok := strings.CutSuffix(value, "%")
	if !ok {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if username == "" {
		return false
	}
	return rolloutBucket(name, username) < pct
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	return maps.Clone(m.flags)
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(username string) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, username)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, username string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + username))
	return int(h.Sum32() % 100)
}
