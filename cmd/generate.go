package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathfinder/internal/engine"
	"github.com/abhisek/pathfinder/internal/ui/components"
	"github.com/abhisek/pathfinder/internal/ui/theme"
)

var generateCmd = &cobra.Command{
	Use:   "generate <student-id>",
	Short: "Generate (or reuse) a student's roadmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, _ := cmd.Flags().GetStringSlice("target")
		timeConstraint, _ := cmd.Flags().GetString("time")
		force, _ := cmd.Flags().GetBool("force")
		drafts, _ := cmd.Flags().GetBool("drafts")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Generate(cmd.Context(), engine.Request{
			StudentID:      args[0],
			TargetSkills:   targets,
			TimeConstraint: timeConstraint,
			Force:          force,
			AllowDrafts:    drafts,
		})
		if err != nil {
			return fmt.Errorf("generate roadmap: %w", err)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, res.Roadmap)
		}

		trace := make([]string, len(res.Trace))
		for i, s := range res.Trace {
			trace[i] = string(s)
		}
		fmt.Fprintln(out, theme.Hint.Render(strings.Join(trace, " → ")))
		if res.FallbackReason != "" {
			fmt.Fprintln(out, theme.Warning.Render("AI generation failed ("+res.FallbackReason+"), used rule-based fallback"))
		}
		for _, w := range res.Warnings {
			fmt.Fprintln(out, theme.Warning.Render("warning: "+w))
		}
		if res.Reused {
			fmt.Fprintln(out, theme.Hint.Render("Stored roadmap is current; use --force to regenerate."))
		}
		if res.Preview {
			fmt.Fprintln(out, theme.Hint.Render("Draft preview; not stored."))
		}
		fmt.Fprintln(out)

		sc, err := a.profiles.Build(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, components.RoadmapView{
			Roadmap:    res.Roadmap,
			Completed:  sc.CompletedSet(),
			InProgress: sc.InProgressSet(),
		}.View())
		return nil
	},
}

func init() {
	generateCmd.Flags().StringSliceP("target", "t", nil, "Target skills to focus on (repeatable)")
	generateCmd.Flags().String("time", "", "Time constraint, e.g. \"6 weeks\"")
	generateCmd.Flags().BoolP("force", "f", false, "Regenerate even if an equivalent roadmap is stored")
	generateCmd.Flags().Bool("drafts", false, "Include unpublished courses")
	generateCmd.Flags().Bool("json", false, "Print the roadmap as JSON")
}
