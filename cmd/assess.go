package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
	"github.com/abhisek/pathfinder/internal/store"
	"github.com/abhisek/pathfinder/internal/ui/theme"
)

var assessCmd = &cobra.Command{
	Use:   "assess <student-id>",
	Short: "Record an assessment result and adjust the roadmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		topics, _ := cmd.Flags().GetStringSlice("topic")
		wrong, _ := cmd.Flags().GetStringSlice("wrong")
		score, _ := cmd.Flags().GetFloat64("score")
		passThreshold, _ := cmd.Flags().GetFloat64("pass")

		if len(topics) == 0 {
			return errors.New("at least one --topic is required")
		}
		rec := profile.AssessmentRecord{
			ID:          id,
			Topics:      topics,
			Score:       score,
			WrongTopics: wrong,
			Timestamp:   time.Now().UTC(),
		}
		if cmd.Flags().Changed("passed") {
			rec.Passed, _ = cmd.Flags().GetBool("passed")
		} else {
			rec.Passed = score >= passThreshold
		}

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		studentID := args[0]
		if err := a.store.Assessments().AppendAssessment(ctx, studentID, rec); err != nil {
			if !errors.Is(err, store.ErrDuplicateAssessment) {
				return err
			}
			a.log.Sugar().Infof("assessment %s already recorded, re-running adjustment", rec.ID)
		}

		out, err := a.adjust.Adjust(ctx, studentID, rec)
		w := cmd.OutOrStdout()
		if errors.Is(err, roadmap.ErrAdjustmentDegraded) && out != nil {
			fmt.Fprintln(w, theme.Warning.Render("Roadmap unchanged: "+err.Error()))
			err = nil
		}
		if err != nil {
			return fmt.Errorf("adjust roadmap: %w", err)
		}

		for _, p := range out.Patterns {
			fmt.Fprintf(w, "%s %s (avg %.1f, confidence %.2f)\n",
				theme.Subtitle.Render(string(p.Type)), p.Data.Topic, p.Data.RollingAvg, p.Data.Confidence)
		}
		if out.Roadmap == nil {
			fmt.Fprintln(w, theme.Hint.Render("No roadmap yet; run generate to create one."))
			return nil
		}
		if !out.Mutated {
			if !out.Degraded {
				fmt.Fprintln(w, theme.Done.Render("Passed. Roadmap unchanged."))
			}
			return nil
		}

		refs := make([]string, len(out.Inserted))
		for i, it := range out.Inserted {
			refs[i] = it.Ref
		}
		fmt.Fprintf(w, "Gaps: %s\n", strings.Join(out.Gaps, ", "))
		fmt.Fprintf(w, "Inserted (%s): %s\n", out.RemedialStrategy, theme.Remedial.Render(strings.Join(refs, ", ")))
		if out.AlternativePath != "" {
			fmt.Fprintln(w, "Alternative: "+out.AlternativePath)
		}
		fmt.Fprintf(w, "Roadmap is now v%d with %d items.\n", out.Roadmap.Version, len(out.Roadmap.Items))
		return nil
	},
}

func init() {
	assessCmd.Flags().String("id", "", "Assessment id (must be unique per student)")
	assessCmd.Flags().StringSlice("topic", nil, "Topic covered by the assessment (repeatable)")
	assessCmd.Flags().StringSlice("wrong", nil, "Topic answered incorrectly (repeatable)")
	assessCmd.Flags().Float64("score", 0, "Score from 0 to 100")
	assessCmd.Flags().Bool("passed", false, "Whether the assessment was passed (default: score >= --pass)")
	assessCmd.Flags().Float64("pass", 70, "Pass mark used when --passed is not given")
	_ = assessCmd.MarkFlagRequired("id")
	_ = assessCmd.MarkFlagRequired("score")
}
