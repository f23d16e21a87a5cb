package llm

import (
	"fmt"
	"strings"
)

// InternalSentinel starts every prompt recall sends to a model. The chat
// hook skips prompts carrying it, so a claude-cli extraction never feeds
// back into the hook that may have started it.
const InternalSentinel = "[recall:internal]"

// InsightExtractionPrompt asks for durable insights in a piece of
// conversation, tagged with the known entities and themes.
func InsightExtractionPrompt(text string, entities, themes []string) string {
	return fmt.Sprintf(`%s
You extract durable personal insights from a conversation so they can be recalled later.

CONVERSATION:
%s

An insight is a realization, a strategy that worked, an anchoring truth, or a recurring
pattern the person noticed. Skip small talk, questions, and anything only true for today.

Known entities (use these exact names, only when the insight is about them): %s
Known themes: %s

Insight types:
- anchor: a foundational truth to hold on to in a crisis
- breakthrough: a shift in understanding
- strategy: something that worked and can be repeated
- observation: a noticed pattern

Rules:
- At most 5 insights
- content is one or two sentences in the person's own framing, under 300 characters
- effectiveness_score is 0.0-1.0: how much this helped, 0.5 when unclear
- Return ONLY a JSON array, no other text

Return a JSON array:
[{
  "content": "the insight",
  "entities": ["A"],
  "themes": ["trust"],
  "insight_type": "anchor|breakthrough|strategy|observation",
  "effectiveness_score": 0.5
}]

If nothing is worth keeping, return: []`, InternalSentinel, text, list(entities), list(themes))
}

func list(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
