package hooks

import (
	"encoding/json"
	"io"
)

// HookOutput is the JSON structure Claude Code expects on stdout from a
// hook that adds context.
type HookOutput struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

// WriteOutput writes additional context for event to w.
func WriteOutput(w io.Writer, event, context string) error {
	out := HookOutput{}
	out.HookSpecificOutput.HookEventName = event
	out.HookSpecificOutput.AdditionalContext = context
	return json.NewEncoder(w).Encode(out)
}
