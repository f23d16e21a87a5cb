package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/importer"
)

var (
	watchDebounce time.Duration
	watchPoll     time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Import conversation files as they appear in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before a changed file is imported")
	watchCmd.Flags().DurationVar(&watchPoll, "poll", 5*time.Second, "Rescan interval when file events are unavailable")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	im := importer.New(a.eng, a.extractor(), a.log)
	return im.Watch(ctx, args[0], importer.WatchOptions{
		Debounce:     watchDebounce,
		PollInterval: watchPoll,
		OnImport: func(path string, rep importer.Report, err error) {
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", path, err)
				return
			}
			fmt.Fprintf(out, "%s: %d insights\n", path, rep.Insights)
		},
	})
}

