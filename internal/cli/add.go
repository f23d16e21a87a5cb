package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/insight"
)

var (
	addEntities      []string
	addThemes        []string
	addType          string
	addEffectiveness float64
	addSupersedes    string
)

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Store an insight",
	Long:  "Store an insight. Effectiveness is computed from the content unless --effectiveness is given.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringSliceVarP(&addEntities, "entity", "e", nil, "Topic entity (repeatable)")
	addCmd.Flags().StringSliceVarP(&addThemes, "theme", "t", nil, "Theme tag (repeatable)")
	addCmd.Flags().StringVar(&addType, "type", "", "anchor, breakthrough, strategy or observation (default: detected)")
	addCmd.Flags().Float64Var(&addEffectiveness, "effectiveness", 0, "Effectiveness score in [0,1]")
	addCmd.Flags().StringVar(&addSupersedes, "supersedes", "", "ID of an insight this one replaces")
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	content := strings.Join(args, " ")
	d := insight.Draft{
		Content:  content,
		Entities: addEntities,
		Themes:   addThemes,
		Type:     insight.Type(strings.ToLower(addType)),
		Source:   "cli",
	}
	d = engine.NewPatternExtractor(a.eng.Lexicon(), 0).Annotate(d)
	if cmd.Flags().Changed("effectiveness") {
		d.Effectiveness = insight.Score(addEffectiveness)
	}

	var id string
	if addSupersedes != "" {
		id, err = a.eng.Supersede(cmd.Context(), addSupersedes, d)
	} else {
		id, err = a.eng.Ingest(cmd.Context(), d)
	}
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
