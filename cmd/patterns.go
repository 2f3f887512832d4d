package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathfinder/internal/roadmap"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns <student-id>",
	Short: "List detected learning patterns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		refresh, _ := cmd.Flags().GetBool("refresh")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if refresh {
			if _, err := a.adjust.Refresh(ctx, args[0]); err != nil {
				return fmt.Errorf("refresh patterns: %w", err)
			}
		}

		var list []roadmap.Pattern
		if all {
			list, err = a.store.Patterns().History(ctx, args[0])
		} else {
			list, err = a.store.Patterns().ActivePatterns(ctx, args[0])
		}
		if err != nil {
			return fmt.Errorf("list patterns: %w", err)
		}

		w := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(w, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(w, "No patterns detected.")
			return nil
		}

		fmt.Fprintf(w, "%-10s  %-20s  %7s  %8s  %6s  %-10s  %s\n",
			"Type", "Topic", "Avg", "Variance", "Conf", "Detected", "Status")
		fmt.Fprintln(w, strings.Repeat("─", 84))
		for _, p := range list {
			status := "active"
			if !p.Active() {
				status = "superseded " + p.SupersededAt.Local().Format("2006-01-02")
			}
			fmt.Fprintf(w, "%-10s  %-20s  %7.2f  %8.2f  %6.2f  %-10s  %s\n",
				p.Type, truncate(p.Data.Topic, 20), p.Data.RollingAvg, p.Data.Variance,
				p.Data.Confidence, p.DetectedAt.Local().Format("2006-01-02"), status)
		}
		return nil
	},
}

func init() {
	patternsCmd.Flags().Bool("all", false, "Include superseded patterns")
	patternsCmd.Flags().Bool("refresh", false, "Re-run detection over the stored history first")
	patternsCmd.Flags().Bool("json", false, "Print patterns as JSON")
}
