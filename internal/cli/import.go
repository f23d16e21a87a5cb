package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import [path...]",
	Short: "Import insights from conversation files",
	Long: `Import insights from conversation files or directories. Markdown, text, HTML
exports and Claude Code JSONL transcripts are read; re-importing a file updates
its insights instead of duplicating them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	im := importer.New(a.eng, a.extractor(), a.log)
	rep, err := im.ImportPaths(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d insights from %d files (%d segments, %d errors)\n",
		rep.Insights, rep.Files, rep.Segments, rep.Errors)
	return nil
}
