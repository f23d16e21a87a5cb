package transcript

const (
	firstLastAssistantMax = 1000
	midAssistantMax       = 200
)

// Condense trims a transcript to the parts that carry insight:
//   - every user message, untouched
//   - first and last assistant message, up to 1000 characters
//   - other assistant messages, up to 200 characters
//
// Entries of other types are dropped. Cut text ends in "...".
func Condense(entries []ParsedEntry) []ParsedEntry {
	assistants := 0
	for _, e := range entries {
		if e.Type == "assistant" {
			assistants++
		}
	}

	out := make([]ParsedEntry, 0, len(entries))
	seen := 0
	for _, e := range entries {
		switch e.Type {
		case "user":
			out = append(out, e)
		case "assistant":
			limit := midAssistantMax
			if seen == 0 || seen == assistants-1 {
				limit = firstLastAssistantMax
			}
			seen++
			e.Text = clip(e.Text, limit)
			out = append(out, e)
		}
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
