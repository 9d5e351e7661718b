package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/store"
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "List recent evaluations from the run ledger",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		return history(cmd.Context(), os.Stdout, limit)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "how many runs to show")
}

func history(ctx context.Context, out io.Writer, limit int) error {
	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}
	if config.Store.Path == "" {
		return fmt.Errorf("store.path is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.Open(config.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	runs, err := db.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	return writeHistory(out, runs, viper.GetBool("debug"))
}

// writeHistory prints one line per run. verbose adds the run id and the error.
func writeHistory(out io.Writer, runs []store.Run, verbose bool) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tSCORE\tFACULTY\tDETAIL")
	for _, r := range runs {
		score := "-"
		if r.Status == store.StatusCompleted {
			score = fmt.Sprintf("%.0f", r.Score)
		}
		faculty := r.Faculty
		if faculty == "" {
			faculty = r.URL
		}
		detail := r.ReportPath
		switch {
		case r.Status == store.StatusFailed:
			detail = "failed at " + r.Stage
			if verbose {
				detail += ": " + r.Error
			}
		case r.Status == store.StatusRunning:
			detail = "in progress or interrupted"
		case detail == "":
			detail = "report skipped"
		}
		if verbose {
			detail = r.ID + " " + detail
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.StartedAt.Local().Format(time.DateTime), r.Status, score, faculty, detail)
	}
	return tw.Flush()
}
