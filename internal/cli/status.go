package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and entity statistics",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	total, err := a.db.Count(ctx)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	version, err := a.db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	stats, err := a.db.EntityStats(ctx)
	if err != nil {
		return fmt.Errorf("entity stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s (schema v%d)\n", a.db.Path, version)
	fmt.Fprintf(out, "Insights: %d\n", total)

	counts := make(map[string]int, len(stats))
	for _, st := range stats {
		counts[st.Entity] = st.Count
	}
	fmt.Fprintln(out, "\n## Entities")
	canon := a.eng.Canon()
	for _, e := range a.eng.Lexicon().Entities() {
		name := e
		if alias := canon.Denormalize(e); alias != e {
			name = fmt.Sprintf("%s (%s)", e, alias)
		}
		fmt.Fprintf(out, "  %-28s %d\n", name, counts[e])
	}

	ps := a.db.Pool().Stats()
	fmt.Fprintf(out, "\nPool: %d open / %d max, %d idle\n", ps.Open, ps.MaxOpen, ps.Idle)
	return nil
}
