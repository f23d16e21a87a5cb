package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/hooks"
	"github.com/lazypower/recall/internal/lexicon"
	"github.com/lazypower/recall/internal/logging"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle Claude Code hook events",
}

var hookSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Handle UserPromptSubmit hook",
	Long:  "Reads the hook JSON from stdin and prints relevant insights as additional context. Always exits 0.",
	Run:   runHookSubmit,
}

func init() {
	hookCmd.AddCommand(hookSubmitCmd)
}

// runHookSubmit never returns an error: a failing hook must not block the
// prompt. Problems are logged to stderr.
func runHookSubmit(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err != nil {
		log.Warn("hook: config", "err", err)
		cfg = config.Default()
	}
	if level, lerr := logging.ParseLevel(cfg.Logging.Level); lerr == nil && level > slog.LevelWarn {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	lex := lexicon.Default()
	if cfg.Lexicon.File != "" {
		if l, err := lexicon.Load(cfg.Lexicon.File); err != nil {
			log.Warn("hook: lexicon", "err", err)
		} else {
			lex = l
		}
	}

	url := os.Getenv("RECALL_URL")
	if url == "" {
		url = "http://" + cfg.ListenAddr()
	}
	h := &hooks.Handler{
		Client:     hooks.NewClient(url, cfg.Server.Token),
		Extractor:  engine.NewPatternExtractor(lex, cfg.Retrieval.MaxContentChars),
		MaxResults: cfg.Retrieval.DefaultMaxResults,
		MaxChars:   cfg.Server.MaxQueryChars,
		Out:        cmd.OutOrStdout(),
		Log:        log,
	}
	h.Handle("submit", cmd.InOrStdin())
}
