package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const claudeCLITimeout = 90 * time.Second

// ClaudeCLI runs `claude -p` once per prompt.
type ClaudeCLI struct {
	bin     string
	model   string
	timeout time.Duration
}

// NewClaudeCLI creates a client that runs the claude binary on PATH.
func NewClaudeCLI(model string) *ClaudeCLI {
	return &ClaudeCLI{bin: "claude", model: model, timeout: claudeCLITimeout}
}

func (c *ClaudeCLI) args() []string {
	return []string{"-p", "--model", c.model, "--max-turns", "1"}
}

// Complete feeds prompt on stdin and returns trimmed stdout.
func (c *ClaudeCLI) Complete(ctx context.Context, prompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, c.args()...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = withoutClaudeVars(os.Environ())

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("claude-cli: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("claude-cli: %w", err)
	}
	return &Response{Content: strings.TrimSpace(stdout.String()), Provider: "claude-cli"}, nil
}

// withoutClaudeVars drops CLAUDE_* variables so the child session is not
// mistaken for the parent one.
func withoutClaudeVars(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDE_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
