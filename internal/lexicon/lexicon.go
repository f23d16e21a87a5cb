// Package lexicon holds the static vocabulary recall matches text against:
// the topic trigger table, entity aliases, permanence and effectiveness
// markers, and the theme and insight-type vocabularies used by extraction.
//
// A Lexicon is loaded once at startup and treated as read-only afterwards.
// Consumers compile what they need from it when they are constructed.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lazypower/recall/internal/insight"
)

//go:embed default.yaml
var defaultYAML []byte

// Trigger maps a canonical entity to the words that call it up.
type Trigger struct {
	Entity     string   `yaml:"entity"`
	Aliases    []string `yaml:"aliases,omitempty"`
	Keywords   []string `yaml:"keywords"`
	MaxSurface int      `yaml:"max_surface"`
}

// Markers are the words counted by the effectiveness heuristic.
type Markers struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// TypeRule assigns an insight type when any pattern matches.
type TypeRule struct {
	Type     insight.Type `yaml:"type"`
	Patterns []string     `yaml:"patterns"`
}

// Lexicon is the full vocabulary.
type Lexicon struct {
	Triggers          []Trigger           `yaml:"triggers"`
	PermanenceMarkers []string            `yaml:"permanence_markers"`
	Effectiveness     Markers             `yaml:"effectiveness"`
	Themes            map[string][]string `yaml:"themes"`
	InsightTypes      []TypeRule          `yaml:"insight_types"`
	CapturePatterns   []string            `yaml:"capture_patterns"`
}

// Default returns the built-in lexicon.
func Default() *Lexicon {
	l, err := decode(defaultYAML)
	if err == nil {
		err = l.Validate()
	}
	if err != nil {
		panic(fmt.Sprintf("lexicon: built-in default is invalid: %v", err))
	}
	return l
}

// Load reads a YAML lexicon from path. Sections the file leaves out keep
// their built-in values. An empty path returns Default().
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return l, nil
}

// Parse decodes a YAML lexicon over the built-in one and validates it.
func Parse(data []byte) (*Lexicon, error) {
	l, err := decode(data)
	if err != nil {
		return nil, err
	}
	l.fillFrom(Default())
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func decode(data []byte) (*Lexicon, error) {
	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &l, nil
}

func (l *Lexicon) fillFrom(d *Lexicon) {
	if len(l.Triggers) == 0 {
		l.Triggers = d.Triggers
	}
	if len(l.PermanenceMarkers) == 0 {
		l.PermanenceMarkers = d.PermanenceMarkers
	}
	if len(l.Effectiveness.Positive) == 0 {
		l.Effectiveness.Positive = d.Effectiveness.Positive
	}
	if len(l.Effectiveness.Negative) == 0 {
		l.Effectiveness.Negative = d.Effectiveness.Negative
	}
	if len(l.Themes) == 0 {
		l.Themes = d.Themes
	}
	if len(l.InsightTypes) == 0 {
		l.InsightTypes = d.InsightTypes
	}
	if len(l.CapturePatterns) == 0 {
		l.CapturePatterns = d.CapturePatterns
	}
}

// Validate checks that every entry is usable.
func (l *Lexicon) Validate() error {
	seen := make(map[string]bool, len(l.Triggers))
	for i, t := range l.Triggers {
		if err := insight.ValidateToken(t.Entity); err != nil {
			return fmt.Errorf("trigger %d: entity: %w", i, err)
		}
		if seen[t.Entity] {
			return fmt.Errorf("trigger %q defined twice", t.Entity)
		}
		seen[t.Entity] = true
		if t.MaxSurface < 0 {
			return fmt.Errorf("trigger %q: max_surface must be >= 0", t.Entity)
		}
		for _, k := range t.Keywords {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("trigger %q: empty keyword", t.Entity)
			}
		}
	}

	for _, p := range l.PermanenceMarkers {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return fmt.Errorf("permanence marker %q: %w", p, err)
		}
	}
	for _, r := range l.InsightTypes {
		if !r.Type.Valid() {
			return fmt.Errorf("insight_types: unknown type %q", r.Type)
		}
		for _, p := range r.Patterns {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("insight_types %s: pattern %q: %w", r.Type, p, err)
			}
		}
	}
	for _, p := range l.CapturePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("capture pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("capture pattern %q has no capture group", p)
		}
	}
	for theme := range l.Themes {
		if err := insight.ValidateToken(theme); err != nil {
			return fmt.Errorf("theme: %w", err)
		}
	}
	return nil
}

// Entities returns the canonical entity names in table order.
func (l *Lexicon) Entities() []string {
	out := make([]string, len(l.Triggers))
	for i, t := range l.Triggers {
		out[i] = t.Entity
	}
	return out
}

// Trigger returns the trigger for a canonical entity.
func (l *Lexicon) Trigger(entity string) (Trigger, bool) {
	for _, t := range l.Triggers {
		if t.Entity == entity {
			return t, true
		}
	}
	return Trigger{}, false
}

// SurfaceCaps returns entity -> max_surface for triggers that set one.
func (l *Lexicon) SurfaceCaps() map[string]int {
	caps := make(map[string]int, len(l.Triggers))
	for _, t := range l.Triggers {
		if t.MaxSurface > 0 {
			caps[t.Entity] = t.MaxSurface
		}
	}
	return caps
}

// Canon builds the alias table for entity normalization.
func (l *Lexicon) Canon() *insight.Canon {
	aliases := make(map[string][]string, len(l.Triggers))
	for _, t := range l.Triggers {
		aliases[t.Entity] = t.Aliases
	}
	return insight.NewCanon(aliases)
}

// ThemeNames returns the theme vocabulary keys, sorted.
func (l *Lexicon) ThemeNames() []string {
	out := make([]string, 0, len(l.Themes))
	for k := range l.Themes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
