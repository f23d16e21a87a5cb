package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lazypower/recall/internal/insight"
)

func TestFormatForConversation(t *testing.T) {
	tiers := Tiers{Surface: []Scored{
		{Insight: insight.Insight{Content: "His word is enough.", Type: insight.TypeAnchor}},
		{Insight: insight.Insight{Content: "Pause before answering.", Type: insight.TypeStrategy}},
	}}
	want := "[Key insight: His word is enough.]\n[Context: Pause before answering.]"
	assert.Equal(t, want, FormatForConversation(tiers))
	assert.Equal(t, "", FormatForConversation(Tiers{}))
}

func TestFormatMarkdown(t *testing.T) {
	tiers := Tiers{
		Surface: []Scored{{Insight: insight.Insight{Content: "His word is enough.", Type: insight.TypeAnchor}}},
		Mid:     make([]Scored, 2),
		Deep:    make([]Scored, 1),
	}
	want := "**🧠 Memory System - Relevant Context:**\n" +
		"⚓ His word is enough.\n" +
		"\n💡 2 mid-layer and 1 deep insights available\n"
	assert.Equal(t, want, FormatMarkdown(tiers))

	assert.Equal(t, "", FormatMarkdown(Tiers{}))
	onlyMid := FormatMarkdown(Tiers{Mid: make([]Scored, 3)})
	assert.Equal(t, "**🧠 Memory System - Relevant Context:**\n\n💡 3 mid-layer insights available\n", onlyMid)
}

func TestTypeEmoji(t *testing.T) {
	assert.Equal(t, "🎯", TypeEmoji(insight.TypeStrategy))
	assert.Equal(t, "•", TypeEmoji(insight.Type("other")))
}

func TestFormatCaptureSuggestion(t *testing.T) {
	drafts := []insight.Draft{
		{Content: "Pause before answering.", Type: insight.TypeStrategy},
		{Content: "Evenings are tense."},
	}
	want := "**💡 Potential insights detected to add to memory:**\n" +
		"1. [Strategy] Pause before answering.\n" +
		"2. [Observation] Evenings are tense.\n"
	assert.Equal(t, want, FormatCaptureSuggestion(drafts))
	assert.Equal(t, "", FormatCaptureSuggestion(nil))
}
