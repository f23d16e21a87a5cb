// Package llm holds the model clients behind LLM-assisted extraction.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lazypower/recall/internal/config"
)

// ErrNoProvider is returned by NewClient when no provider is configured.
// Extraction then runs on patterns alone.
var ErrNoProvider = errors.New("no LLM provider configured")

// Client completes a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response is one completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// providers builds a client per [llm] provider name, filling model
// defaults.
var providers = map[string]func(config.LLMConfig) (Client, error){
	"claude-cli": func(cfg config.LLMConfig) (Client, error) {
		return NewClaudeCLI(orDefault(cfg.Model, "haiku")), nil
	},
	"anthropic": func(cfg config.LLMConfig) (Client, error) {
		if cfg.AnthropicKey == "" {
			return nil, errors.New("anthropic provider needs anthropic_key or ANTHROPIC_API_KEY")
		}
		return NewAnthropic(cfg.AnthropicKey, orDefault(cfg.Model, "claude-haiku-4-5-20251001")), nil
	},
	"ollama": func(cfg config.LLMConfig) (Client, error) {
		return NewOllama(orDefault(cfg.OllamaURL, "http://localhost:11434"), orDefault(cfg.OllamaModel, "llama3.2")), nil
	},
}

// NewClient returns the client for cfg.Provider.
func NewClient(cfg config.LLMConfig) (Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		return nil, ErrNoProvider
	}
	build, ok := providers[name]
	if !ok {
		names := make([]string, 0, len(providers))
		for n := range providers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown LLM provider %q (want one of %s)", cfg.Provider, strings.Join(names, ", "))
	}
	return build(cfg)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
