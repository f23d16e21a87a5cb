package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		want    any
		wantErr bool
	}{
		{"claude-cli", config.LLMConfig{Provider: "claude-cli", Model: "haiku"}, &ClaudeCLI{}, false},
		{"anthropic", config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key"}, &Anthropic{}, false},
		{"anthropic without key", config.LLMConfig{Provider: "anthropic"}, nil, true},
		{"ollama", config.LLMConfig{Provider: "ollama", OllamaModel: "llama3.2"}, &Ollama{}, false},
		{"unknown", config.LLMConfig{Provider: "gpt"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
		})
	}
}

func TestNewClientWithoutProvider(t *testing.T) {
	client, err := NewClient(config.LLMConfig{})
	assert.Nil(t, client)
	assert.True(t, errors.Is(err, ErrNoProvider))
}

func TestWithoutClaudeVars(t *testing.T) {
	env := []string{
		"HOME=/home/user",
		"CLAUDE_SESSION_ID=abc123",
		"CLAUDE_TRANSCRIPT=/tmp/t.jsonl",
		"PATH=/usr/bin",
	}
	assert.Equal(t, []string{"HOME=/home/user", "PATH=/usr/bin"}, withoutClaudeVars(env))
}

func TestInsightExtractionPrompt(t *testing.T) {
	p := InsightExtractionPrompt("I realized that A keeps his word", []string{"A", "N"}, nil)
	assert.True(t, strings.HasPrefix(p, InternalSentinel))
	assert.Contains(t, p, "I realized that A keeps his word")
	assert.Contains(t, p, "Known entities (use these exact names, only when the insight is about them): A, N")
	assert.Contains(t, p, "Known themes: (none)")
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"text":"[]"},{"text":"\n"}],"usage":{"input_tokens":10,"output_tokens":2}}`))
	}))
	defer srv.Close()

	a := NewAnthropic("test-key", "claude-test")
	a.endpoint = srv.URL

	resp, err := a.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 12, resp.TokensUsed)
}

func TestAnthropicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAnthropic("k", "m")
	a.endpoint = srv.URL
	_, err := a.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Write([]byte(`{"response":"  [{\"content\":\"x\"}]  "}`))
	}))
	defer srv.Close()

	resp, err := NewOllama(srv.URL+"/", "llama3.2").Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `[{"content":"x"}]`, resp.Content)
	assert.Equal(t, "ollama", resp.Provider)
}

func TestClaudeCLIMissingBinary(t *testing.T) {
	c := NewClaudeCLI("haiku")
	c.bin = "recall-test-no-such-binary"
	assert.Equal(t, []string{"-p", "--model", "haiku", "--max-turns", "1"}, c.args())

	_, err := c.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude-cli")
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{
		Response: &Response{Content: "test response", Provider: "mock"},
	}

	resp, err := mock.Complete(context.Background(), "test prompt")
	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	assert.Equal(t, []string{"test prompt"}, mock.Calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mock.Complete(ctx, "late")
	assert.ErrorIs(t, err, context.Canceled)
}
