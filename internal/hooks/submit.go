package hooks

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/llm"
)

const defaultMaxChars = 5000

// isInternalPrompt reports whether the prompt came from recall's own
// extraction calls. claude -p starts a session whose hooks fire back here.
func isInternalPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, llm.InternalSentinel)
}

type queryResponse struct {
	Total    int    `json:"total"`
	Markdown string `json:"markdown"`
}

func (h *Handler) handleSubmit(input *HookInput) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" || isInternalPrompt(input.Prompt) {
		return
	}

	var parts []string
	if md := h.recall(prompt); md != "" {
		parts = append(parts, md)
	}
	if s := h.suggest(prompt); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return
	}

	if err := WriteOutput(h.Out, "UserPromptSubmit", strings.Join(parts, "\n")); err != nil {
		h.Log.Warn("hook: write output", "err", err)
	}
}

// recall asks the server for insights relevant to prompt. A server that is
// down or failing yields "".
func (h *Handler) recall(prompt string) string {
	if h.Client == nil || !h.Client.Healthy() {
		return ""
	}

	limit := h.MaxChars
	if limit <= 0 {
		limit = defaultMaxChars
	}
	if r := []rune(prompt); len(r) > limit {
		prompt = string(r[:limit])
	}

	body, err := json.Marshal(map[string]any{"input": prompt, "max_results": h.MaxResults})
	if err != nil {
		h.Log.Warn("hook: encode query", "err", err)
		return ""
	}
	data, err := h.Client.Post("/api/query", body)
	if err != nil {
		h.Log.Warn("hook: query", "err", err)
		return ""
	}

	var resp queryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		h.Log.Warn("hook: decode query response", "err", err)
		return ""
	}
	if resp.Total == 0 {
		return ""
	}
	return resp.Markdown
}

func (h *Handler) suggest(prompt string) string {
	if h.Extractor == nil {
		return ""
	}
	drafts, err := h.Extractor.Extract(context.Background(), prompt)
	if err != nil {
		h.Log.Warn("hook: extract", "err", err)
		return ""
	}
	return engine.FormatCaptureSuggestion(drafts)
}
