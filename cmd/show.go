package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathfinder/internal/ui/components"
)

var showCmd = &cobra.Command{
	Use:   "show <student-id>",
	Short: "Show a student's current roadmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		rm, err := a.engine.Current(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load roadmap: %w", err)
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), rm)
		}

		sc, err := a.profiles.Build(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), components.RoadmapView{
			Roadmap:    rm,
			Completed:  sc.CompletedSet(),
			InProgress: sc.InProgressSet(),
			Verbose:    verbose,
		}.View())
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "Print the roadmap as JSON")
	showCmd.Flags().BoolP("verbose", "v", false, "Include rationales and the reasoning log")
}
