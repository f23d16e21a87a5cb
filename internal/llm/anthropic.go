package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	anthropicAPI     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"

	// extraction answers are short JSON arrays
	anthropicMaxTokens = 1024
)

// Anthropic calls the Anthropic Messages API directly.
type Anthropic struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewAnthropic creates a new Anthropic API client.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		apiKey:   apiKey,
		model:    model,
		endpoint: anthropicAPI,
		client:   &http.Client{Timeout: providerTimeout},
	}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a single user message and joins the text blocks of the
// reply.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Response, error) {
	header := http.Header{}
	header.Set("x-api-key", a.apiKey)
	header.Set("anthropic-version", anthropicVersion)

	var out messagesResponse
	err := postJSON(ctx, a.client, "anthropic", a.endpoint, header, messagesRequest{
		Model:       a.model,
		MaxTokens:   anthropicMaxTokens,
		Temperature: 0.2,
		Messages:    []message{{Role: "user", Content: prompt}},
	}, &out)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		text.WriteString(block.Text)
	}
	return &Response{
		Content:    strings.TrimSpace(text.String()),
		Provider:   "anthropic",
		TokensUsed: out.Usage.InputTokens + out.Usage.OutputTokens,
	}, nil
}
