package hooks

// HookInput is the JSON Claude Code sends on stdin to a UserPromptSubmit
// hook.
type HookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
	Prompt         string `json:"prompt,omitempty"`
}
