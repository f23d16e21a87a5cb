// Package hooks implements the Claude Code hook that injects recalled
// insights into a conversation.
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/lazypower/recall/internal/engine"
)

// Handler runs hook events. Hooks must never fail the caller, so every
// error is logged and swallowed; stdout carries only hook JSON.
type Handler struct {
	Client     *Client
	Extractor  engine.Extractor // capture suggestions; nil disables them
	MaxResults int
	MaxChars   int // prompts are cut to this many characters before querying
	Out        io.Writer
	Log        *slog.Logger
}

// Handle reads HookInput from stdin and dispatches on event.
func (h *Handler) Handle(event string, stdin io.Reader) {
	if h.Log == nil {
		h.Log = slog.Default()
	}

	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		h.Log.Warn("hook: decode stdin", "event", event, "err", err)
		return
	}

	switch event {
	case "submit":
		h.handleSubmit(&input)
	default:
		h.Log.Warn("hook: unknown event", "event", event, "err", fmt.Errorf("unknown hook event: %s", event))
	}
}
