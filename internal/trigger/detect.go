// Package trigger decides which topics a piece of free text is about.
package trigger

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/lazypower/recall/internal/lexicon"
)

// Detector matches text against a fixed trigger table. It is safe for
// concurrent use; nothing about it changes after New.
type Detector struct {
	rules []rule
}

type rule struct {
	entity   string
	keywords *regexp.Regexp // nil when the trigger has no keywords
	names    []*regexp.Regexp
}

// New compiles the trigger table of l.
//
// Keywords match case-insensitively at the start of a word, so "trust"
// also catches "trusting". Entity names and aliases must match a whole
// word. Short upper-case names like "A" or "N" are matched with their case
// intact; otherwise the article "a" would call up entity A.
func New(l *lexicon.Lexicon) *Detector {
	d := &Detector{}
	for _, t := range l.Triggers {
		r := rule{entity: t.Entity, keywords: compileKeywords(t.Keywords)}
		for _, name := range append([]string{t.Entity}, t.Aliases...) {
			if re := namePattern(name); re != nil {
				r.names = append(r.names, re)
			}
		}
		d.rules = append(d.rules, r)
	}
	return d
}

// Detect returns the canonical entities activated by text, in table order,
// each at most once. Blank text activates nothing.
func (d *Detector) Detect(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, r := range d.rules {
		if r.match(text) {
			out = append(out, r.entity)
		}
	}
	return out
}

// Entities returns every entity the detector knows, in table order.
func (d *Detector) Entities() []string {
	out := make([]string, len(d.rules))
	for i, r := range d.rules {
		out[i] = r.entity
	}
	return out
}

func (r rule) match(text string) bool {
	if r.keywords != nil && r.keywords.MatchString(text) {
		return true
	}
	for _, re := range r.names {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// compileKeywords builds one alternation for all keywords. Each keyword is
// anchored at a word start when it begins with a word character.
func compileKeywords(keywords []string) *regexp.Regexp {
	var alts []string
	for _, k := range keywords {
		p := phrasePattern(strings.ToLower(k))
		if p == "" {
			continue
		}
		if startsWithWord(k) {
			p = `\b` + p
		}
		alts = append(alts, p)
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}

// phrasePattern quotes k and lets any run of whitespace separate its words.
func phrasePattern(k string) string {
	fields := strings.Fields(k)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s+`)
}

func namePattern(name string) *regexp.Regexp {
	name = strings.TrimSpace(name)
	p := phrasePattern(name)
	if p == "" {
		return nil
	}
	if startsWithWord(name) {
		p = `\b` + p
	}
	if endsWithWord(name) {
		p += `\b`
	}
	if caseSensitive(name) {
		return regexp.MustCompile(p)
	}
	return regexp.MustCompile(`(?i)` + p)
}

// caseSensitive reports whether name is a short all-caps token.
func caseSensitive(name string) bool {
	if len([]rune(name)) > 2 {
		return false
	}
	hasUpper := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

func startsWithWord(s string) bool {
	for _, r := range s {
		return isWord(r)
	}
	return false
}

func endsWithWord(s string) bool {
	rs := []rune(s)
	return len(rs) > 0 && isWord(rs[len(rs)-1])
}

// isWord mirrors the ASCII \w class that \b is defined against.
func isWord(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
