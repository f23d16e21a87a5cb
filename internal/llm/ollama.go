package llm

import (
	"context"
	"net/http"
	"strings"
)

// Ollama calls a local Ollama instance.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new Ollama client for the server at url.
func NewOllama(url, model string) *Ollama {
	return &Ollama{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: providerTimeout},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete runs a non-streaming generation.
func (o *Ollama) Complete(ctx context.Context, prompt string) (*Response, error) {
	var out generateResponse
	err := postJSON(ctx, o.client, "ollama", o.url+"/api/generate", nil, generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Options: generateOptions{Temperature: 0.2, NumPredict: anthropicMaxTokens},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &Response{
		Content:    strings.TrimSpace(out.Response),
		Provider:   "ollama",
		TokensUsed: out.PromptEvalCount + out.EvalCount,
	}, nil
}
