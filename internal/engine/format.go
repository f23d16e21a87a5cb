package engine

import (
	"fmt"
	"strings"

	"github.com/lazypower/recall/internal/insight"
)

// FormatForConversation renders the surface tier for injection into a
// conversation. Anchors and breakthroughs are flagged as key insights.
// An empty surface tier renders as "".
func FormatForConversation(t Tiers) string {
	parts := make([]string, 0, len(t.Surface))
	for _, s := range t.Surface {
		if s.Type.Pinned() {
			parts = append(parts, "[Key insight: "+s.Content+"]")
		} else {
			parts = append(parts, "[Context: "+s.Content+"]")
		}
	}
	return strings.Join(parts, "\n")
}

// TypeEmoji is the marker shown next to an insight of each type.
func TypeEmoji(t insight.Type) string {
	switch t {
	case insight.TypeAnchor:
		return "⚓"
	case insight.TypeBreakthrough:
		return "💡"
	case insight.TypeStrategy:
		return "🎯"
	case insight.TypeObservation:
		return "👁️"
	default:
		return "•"
	}
}

// FormatMarkdown renders the surface tier as a markdown list, with a note
// about how much more the mid and deep tiers hold.
func FormatMarkdown(t Tiers) string {
	if t.Total() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("**🧠 Memory System - Relevant Context:**\n")
	for _, s := range t.Surface {
		fmt.Fprintf(&b, "%s %s\n", TypeEmoji(s.Type), s.Content)
	}

	var more []string
	if n := len(t.Mid); n > 0 {
		more = append(more, fmt.Sprintf("%d mid-layer", n))
	}
	if n := len(t.Deep); n > 0 {
		more = append(more, fmt.Sprintf("%d deep", n))
	}
	if len(more) > 0 {
		fmt.Fprintf(&b, "\n💡 %s insights available\n", strings.Join(more, " and "))
	}
	return b.String()
}

// FormatCaptureSuggestion lists drafts worth saving, or "" when there are
// none.
func FormatCaptureSuggestion(drafts []insight.Draft) string {
	if len(drafts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("**💡 Potential insights detected to add to memory:**\n")
	for i, d := range drafts {
		typ := string(d.Type)
		if typ == "" {
			typ = string(insight.TypeObservation)
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, strings.ToUpper(typ[:1])+typ[1:], d.Content)
	}
	return b.String()
}
