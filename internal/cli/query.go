package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/engine"
)

var (
	queryLimit int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Show the insights a piece of conversation would surface",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "Maximum number of insights (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the result as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	a, err := setup(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	res, err := a.eng.Retrieve(ctx, text, queryLimit)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderResult(out, res, isTerminal(out))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	tierStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pinStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	topicStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// renderResult prints tiers as plain text, styled when out is a terminal.
func renderResult(out io.Writer, res *engine.Result, styled bool) {
	paint := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	if len(res.Triggers) == 0 {
		fmt.Fprintln(out, "No topics detected.")
		return
	}
	fmt.Fprintf(out, "Topics: %s\n", paint(topicStyle, strings.Join(res.Triggers, ", ")))
	if res.Total() == 0 {
		fmt.Fprintln(out, "No insights stored for these topics.")
		return
	}

	for _, tier := range []struct {
		name string
		list []engine.Scored
	}{
		{"Surface", res.Surface},
		{"Mid", res.Mid},
		{"Deep", res.Deep},
	} {
		if len(tier.list) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s\n", paint(tierStyle, fmt.Sprintf("## %s (%d)", tier.name, len(tier.list))))
		for _, s := range tier.list {
			content := s.Content
			if s.Type.Pinned() {
				content = paint(pinStyle, content)
			}
			fmt.Fprintf(out, "%s %s\n", engine.TypeEmoji(s.Type), content)
			fmt.Fprintf(out, "   %s\n", paint(dimStyle, fmt.Sprintf("score %.3f · effectiveness %.2f · %d days · %s",
				s.Score, s.Effectiveness, s.AgeDays, strings.Join(s.Entities, ","))))
		}
	}
}
