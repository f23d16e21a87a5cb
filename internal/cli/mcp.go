package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/mcp"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server",
	Long:  "Serve query_memory, add_insight, detect_conversation_insights and get_memory_status over stdio, or over streamable HTTP with --http.",
	RunE:  runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Serve streamable HTTP on this address (e.g. :8002) instead of stdio")
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol on stdio, so logs always go to stderr.
	a, err := setup(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcp.NewServer(mcp.Options{
		Engine:     a.eng,
		Store:      a.db,
		Extractor:  a.extractor(),
		MaxResults: a.cfg.Server.MaxResultsLimit,
		Logger:     a.log,
		Version:    Version,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mcpHTTPAddr != "" {
		return srv.RunHTTP(ctx, mcpHTTPAddr)
	}
	return srv.Run(ctx)
}
