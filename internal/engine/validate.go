package engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lazypower/recall/internal/insight"
)

// minFragmentChars is the shortest extracted content worth keeping.
const minFragmentChars = 10

// insightCandidate is the JSON structure returned by the extraction LLM.
type insightCandidate struct {
	Content       string   `json:"content"`
	Entities      []string `json:"entities"`
	Themes        []string `json:"themes"`
	InsightType   string   `json:"insight_type"`
	Effectiveness *float64 `json:"effectiveness_score"`
}

// validateCandidate turns a model candidate into a draft, dropping the
// parts that cannot be stored. Content that is too short rejects the whole
// candidate; content that is too long is cut at a word boundary.
func validateCandidate(c insightCandidate, maxContent int) (insight.Draft, error) {
	content := strings.TrimSpace(c.Content)
	if utf8.RuneCountInString(content) <= minFragmentChars {
		return insight.Draft{}, fmt.Errorf("content too short (%d chars)", utf8.RuneCountInString(content))
	}

	d := insight.Draft{
		Content:  truncateClean(content, maxContent),
		Entities: keepTokens(c.Entities),
		Themes:   keepTokens(c.Themes),
		Type:     insight.Type(strings.ToLower(strings.TrimSpace(c.InsightType))),
	}
	if !d.Type.Valid() {
		d.Type = insight.TypeObservation
	}
	for i, t := range d.Themes {
		d.Themes[i] = strings.ToLower(t)
	}
	if c.Effectiveness != nil && *c.Effectiveness >= 0 && *c.Effectiveness <= 1 {
		d.Effectiveness = insight.Score(*c.Effectiveness)
	}
	return d, nil
}

// keepTokens drops tokens that would fail set validation and caps the
// list at the set size limit.
func keepTokens(in []string) []string {
	var out []string
	for _, t := range in {
		t = strings.TrimSpace(t)
		if insight.ValidateToken(t) != nil {
			continue
		}
		out = append(out, t)
		if len(out) == insight.MaxSetSize {
			break
		}
	}
	return out
}

// truncateClean truncates s to maxChars characters, cutting at the last
// word boundary to avoid mid-word breaks.
func truncateClean(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}

	truncated := string(r[:maxChars])
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > len(truncated)/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

// firstSentence cuts s after its first sentence terminator.
func firstSentence(s string) string {
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next == len(s) || unicode.IsSpace(rune(s[next])) {
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}
