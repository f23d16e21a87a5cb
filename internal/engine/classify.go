package engine

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/lazypower/recall/internal/insight"
	"github.com/lazypower/recall/internal/lexicon"
)

// Effectiveness scores content by counting marker phrases: each distinct
// positive marker present raises the score, each negative one lowers it.
type Effectiveness struct {
	positive []string
	negative []string
}

func NewEffectiveness(m lexicon.Markers) *Effectiveness {
	return &Effectiveness{positive: lower(m.Positive), negative: lower(m.Negative)}
}

// Score returns a value in [0,1]; 0.5 when the markers balance or none
// are present.
func (e *Effectiveness) Score(content string) float64 {
	text := strings.ToLower(content)
	pos, neg := count(text, e.positive), count(text, e.negative)
	var v float64
	switch {
	case pos > neg:
		v = math.Min(1.0, 0.6+0.1*float64(pos))
	case neg > pos:
		v = math.Max(0.0, 0.4-0.1*float64(neg))
	default:
		v = insight.DefaultEffectiveness
	}
	return math.Round(v*100) / 100
}

func count(text string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(text, m) {
			n++
		}
	}
	return n
}

func lower(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Classifier tags free text with themes and an insight type.
type Classifier struct {
	themes []themeRule
	types  []typeRule
}

type themeRule struct {
	name string
	re   *regexp.Regexp
}

type typeRule struct {
	typ insight.Type
	res []*regexp.Regexp
}

// NewClassifier compiles the lexicon's theme and type vocabularies. Theme
// words match at a word start; type patterns are regular expressions.
func NewClassifier(l *lexicon.Lexicon) *Classifier {
	c := &Classifier{}
	for _, name := range l.ThemeNames() {
		words := l.Themes[name]
		if len(words) == 0 {
			continue
		}
		alts := make([]string, len(words))
		for i, w := range words {
			alts[i] = `\b` + strings.Join(quoteFields(strings.ToLower(w)), `\s+`)
		}
		c.themes = append(c.themes, themeRule{
			name: strings.ToLower(name),
			re:   regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`),
		})
	}
	for _, r := range l.InsightTypes {
		tr := typeRule{typ: r.Type}
		for _, p := range r.Patterns {
			tr.res = append(tr.res, regexp.MustCompile("(?i)"+p))
		}
		c.types = append(c.types, tr)
	}
	return c
}

func quoteFields(s string) []string {
	f := strings.Fields(s)
	for i := range f {
		f[i] = regexp.QuoteMeta(f[i])
	}
	return f
}

// Themes returns every theme whose vocabulary appears in text.
func (c *Classifier) Themes(text string) []string {
	var out []string
	for _, t := range c.themes {
		if t.re.MatchString(text) {
			out = append(out, t.name)
		}
	}
	sort.Strings(out)
	return out
}

// Type returns the first type, in lexicon order, with a matching pattern,
// or observation.
func (c *Classifier) Type(text string) insight.Type {
	for _, r := range c.types {
		for _, re := range r.res {
			if re.MatchString(text) {
				return r.typ
			}
		}
	}
	return insight.TypeObservation
}
