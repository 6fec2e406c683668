package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"angelbot/internal/domain"
)

// toMap round-trips cfg through JSON so it can be walked by key.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a value by dot-notation path (e.g. "watch.retentionHours").
// Unknown keys wrap domain.ErrNotFound.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var node any = m
	walked := ""
	for _, key := range strings.Split(path, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config %s: %s is a %T, not a section", path, walked, node)
		}
		if node, ok = obj[key]; !ok {
			return nil, fmt.Errorf("config %s: %w", path, domain.ErrNotFound)
		}
		walked = strings.TrimPrefix(walked+"."+key, ".")
	}
	return node, nil
}

// SetByPath sets a value by dot-notation path. String values are coerced
// to bool or number when they parse as one, except under "destinations"
// where IDs must stay strings.
func SetByPath(cfg *Config, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key]
		if !ok || child == nil {
			next := make(map[string]any)
			parent[key] = next
			parent = next
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot traverse into %T at %s", child, key)
		}
		parent = childMap
	}

	if parts[0] == "destinations" {
		parent[parts[len(parts)-1]] = value
	} else {
		parent[parts[len(parts)-1]] = parseValue(value)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	updated := Defaults()
	if err := json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = *updated
	return nil
}

func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of the config with the bot token masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Destinations = make(map[string]string, len(cfg.Destinations))
	for k, v := range cfg.Destinations {
		out.Destinations[k] = v
	}
	if out.Discord.Token != "" {
		out.Discord.Token = maskString(out.Discord.Token)
	}
	return &out
}

// maskString shows the first and last 4 chars.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path with its value, sorted by path.
func ListPaths(cfg *Config) []PathValue {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	var out []PathValue
	flatten("", m, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

type PathValue struct {
	Path  string
	Value any
}

func flatten(prefix string, m map[string]any, out *[]PathValue) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok && len(child) > 0 {
			flatten(path, child, out)
			continue
		}
		*out = append(*out, PathValue{Path: path, Value: v})
	}
}
