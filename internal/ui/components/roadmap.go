package components

import (
	"fmt"
	"strings"

	"github.com/abhisek/pathfinder/internal/roadmap"
	"github.com/abhisek/pathfinder/internal/ui/theme"
)

// RoadmapView renders a stored roadmap with per-item statuses.
type RoadmapView struct {
	Roadmap    *roadmap.Roadmap
	Completed  map[string]bool
	InProgress map[string]bool
	Width      int
	// Verbose adds rationales and the reasoning log.
	Verbose bool
}

func (v RoadmapView) View() string {
	r := v.Roadmap
	width := v.Width
	if width <= 0 {
		width = 72
	}

	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("Roadmap for %s", r.StudentID)))
	b.WriteString("\n")
	b.WriteString(theme.Subtitle.Render(fmt.Sprintf("v%d · %s · %s → %s · %s",
		r.Version, r.Strategy, r.Progression.Start, r.Progression.End, formatMinutes(r.TotalMinutes))))
	b.WriteString("\n\n")

	done := 0
	marker := roadmap.PositionMarker(r.Items, v.Completed)
	for i, it := range r.Items {
		status := roadmap.StatusOf(it, v.Completed, v.InProgress)
		if status == roadmap.StatusCompleted {
			done++
		}
		b.WriteString(v.line(i, it, status, i == marker))
		b.WriteString("\n")
		if v.Verbose && it.Rationale != "" {
			b.WriteString("      " + theme.Hint.Render(it.Rationale) + "\n")
		}
	}

	if len(r.Items) > 0 {
		b.WriteString("\n")
		b.WriteString(ProgressBar{
			Label:       "Progress",
			Percent:     float64(done) / float64(len(r.Items)),
			ShowPercent: true,
			Width:       width,
		}.View())
		b.WriteString("\n")
	}

	if len(r.AlternativePaths) > 0 {
		b.WriteString("\n" + theme.Body.Render("Alternatives") + "\n")
		for _, alt := range r.AlternativePaths {
			b.WriteString("  • " + alt + "\n")
		}
	}
	if len(r.SuccessMetrics) > 0 {
		b.WriteString("\n" + theme.Body.Render("Success metrics") + "\n")
		for _, m := range r.SuccessMetrics {
			b.WriteString("  • " + m + "\n")
		}
	}
	if v.Verbose && r.Reasoning != "" {
		b.WriteString("\n" + theme.Card.Width(width).Render(r.Reasoning) + "\n")
	}
	return b.String()
}

func (v RoadmapView) line(i int, it roadmap.Item, status roadmap.ItemStatus, current bool) string {
	mark := "○"
	style := theme.Pending
	switch {
	case status == roadmap.StatusCompleted:
		mark, style = "✓", theme.Done
	case current || status == roadmap.StatusInProgress:
		mark, style = "▶", theme.Current
	}
	ref := style.Render(it.Ref)
	if it.IsRemedial() {
		ref = theme.Remedial.Render(it.Ref)
	}
	return fmt.Sprintf(" %s %2d. %s  %s", style.Render(mark), i+1, ref,
		theme.Subtitle.Render(fmt.Sprintf("%s · %s · %s", it.Kind, it.Difficulty, formatMinutes(it.EstimatedMinutes))))
}

func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}
