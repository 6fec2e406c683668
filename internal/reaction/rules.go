// Package reaction adds emoji reactions to messages that mention a keyword.
package reaction

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Emoji is a custom guild emoji, or a unicode emoji when ID is empty.
type Emoji struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id"`
	Animated bool   `yaml:"animated"`
}

// APIName is the form the reaction endpoint expects: "name:id" for custom
// emoji, the bare character otherwise.
func (e Emoji) APIName() string {
	if e.ID == "" {
		return e.Name
	}
	return e.Name + ":" + e.ID
}

// Rule reacts with Emojis, in order, to any message containing Keyword.
type Rule struct {
	Keyword string  `yaml:"keyword"`
	Emojis  []Emoji `yaml:"emojis"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is used when no rules file is configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			Keyword: "stalweidism",
			Emojis: []Emoji{
				{Name: "doy", ID: "767402279539441684"},
				{Name: "FGuOoDoY", ID: "848665642713874472"},
			},
		},
	}
}

// LoadRules reads a YAML rules file. An empty path or a missing file yields
// DefaultRules.
func LoadRules(path string, logger *slog.Logger) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("reaction rules file does not exist, using defaults", "path", path)
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reaction rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reaction rules %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		r.Keyword = strings.ToLower(strings.TrimSpace(r.Keyword))
		if r.Keyword == "" {
			return nil, fmt.Errorf("reaction rule %d: empty keyword", i)
		}
		if len(r.Emojis) == 0 {
			logger.Warn("reaction rule has no emojis, skipping", "keyword", r.Keyword)
			continue
		}
		rules = append(rules, r)
	}
	logger.Info("loaded reaction rules", "path", path, "count", len(rules))
	return rules, nil
}

// Match returns the emoji to add for content, in rule order. Matching is
// case-insensitive on substrings.
func Match(rules []Rule, content string) []Emoji {
	lower := strings.ToLower(content)
	var out []Emoji
	for _, r := range rules {
		if r.Keyword != "" && strings.Contains(lower, strings.ToLower(r.Keyword)) {
			out = append(out, r.Emojis...)
		}
	}
	return out
}
