package rulegen

import (
	"fmt"
	"slices"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// ReviewPrefix marks a remedial placeholder that references no catalog
// content.
const ReviewPrefix = "review:"

// Remedial picks at most maxItems remedial steps for the gap topics, one
// per gap in order. For each gap it takes the easiest course teaching the
// topic that the student can start right now and has not seen; otherwise
// it emits a review placeholder.
func Remedial(sc profile.StudentContext, g *catalog.Graph, cfg config.Engine, gaps []string, maxItems int, existing []roadmap.Item) []roadmap.Item {
	completed := sc.CompletedSet()
	seen := make(map[string]bool, len(existing))
	for _, it := range existing {
		seen[it.Ref] = true
	}
	mult := cfg.PaceMultiplier(string(sc.Preferences.Pace))

	var out []roadmap.Item
	for _, gap := range uniqueSorted(gaps) {
		if len(out) >= maxItems {
			break
		}
		if it, ok := remedialCourse(g, completed, seen, gap, mult, cfg); ok {
			seen[it.Ref] = true
			out = append(out, it)
			continue
		}
		ref := ReviewPrefix + gap
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, roadmap.Item{
			Ref:              ref,
			Kind:             roadmap.KindRemedial,
			EstimatedMinutes: cfg.DefaultRemedialMinutes,
			Difficulty:       catalog.Beginner,
			Topics:           []string{gap},
			Rationale:        fmt.Sprintf("Targeted review of %s after a failed assessment", gap),
		})
	}
	return out
}

func remedialCourse(g *catalog.Graph, completed, seen map[string]bool, gap string, mult float64, cfg config.Engine) (roadmap.Item, bool) {
	for _, c := range g.CoursesTeaching(gap) {
		if completed[c.ID] || seen[c.ID] {
			continue
		}
		if g.Blocked(c.ID, completed) || len(g.PendingAncestors(c.ID, completed)) > 0 {
			continue
		}
		return roadmap.Item{
			Ref:              c.ID,
			Kind:             roadmap.KindRemedial,
			EstimatedMinutes: paced(c.DurationMinutes, mult, cfg),
			Difficulty:       c.Difficulty,
			Topics:           slices.Clone(c.Topics),
			Rationale:        fmt.Sprintf("Revisit %s to strengthen %s", c.Title, gap),
		}, true
	}
	return roadmap.Item{}, false
}
