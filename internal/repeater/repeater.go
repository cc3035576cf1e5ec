// Package repeater implements the adaptive stopping-rule family invoked by
// the orchestrator after every repetition.
package repeater

import (
	"sharpbench.dev/internal/rundata"
)

// Repeater is the common protocol every stopping rule implements: after
// each repetition the orchestrator hands it the just-produced RunData, and
// it returns whether another repetition is warranted.
type Repeater interface {
	// Continue appends the chosen metric's values to the repeater's
	// internal sample, increments its count, and reports whether the
	// experiment should run again.
	Continue(data *rundata.RunData) bool
	// Count returns the total number of repetitions seen so far.
	Count() int
}

// subOptions resolves a named sub-section of repeater_options, falling back
// to the flat map itself when no sub-section exists — the same
// ropts.get("SE", ropts) pattern every concrete rule uses in the source
// this is ported from, letting a single flat repeater_options block double
// as that one rule's options when only one rule is ever selected.
func subOptions(ropts map[string]any, key string) map[string]any {
	if ropts == nil {
		return map[string]any{}
	}
	if sub, ok := ropts[key]; ok {
		if m, ok := sub.(map[string]any); ok {
			return m
		}
	}
	return ropts
}

func getFloat(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

func getInt(m map[string]any, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

func getString(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func getBool(m map[string]any, key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func getStringSlice(m map[string]any, key string, def []string) []string {
	v, ok := m[key]
	if !ok {
		return def
	}
	raw, ok := v.([]any)
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
