// Package rulegen builds roadmaps deterministically from the prerequisite
// graph. It is the fallback when the reasoning provider is unavailable or
// its output cannot be trusted, and it never fails.
package rulegen

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// Options narrows a generation request.
type Options struct {
	TargetSkills []string
	// TimeConstraint is a requested budget such as "6 weeks", "40 hours"
	// or a date. The tighter of it and the target date budget applies.
	TimeConstraint string
}

// Generate returns a valid rule-based roadmap for the student. The same
// inputs always produce the same roadmap.
func Generate(sc profile.StudentContext, g *catalog.Graph, cfg config.Engine, opts Options) *roadmap.Roadmap {
	completed := sc.CompletedSet()
	gaps := sc.GapSet()
	targets := uniqueSorted(opts.TargetSkills)

	var notes []string
	candidates := eligible(g, completed)
	if len(targets) > 0 {
		restricted := restrictToTargets(g, completed, candidates, targets)
		if len(restricted) == 0 {
			notes = append(notes, fmt.Sprintf("No catalog course teaches %s; showing the full catalog instead.", strings.Join(targets, ", ")))
		} else {
			candidates = restricted
		}
	}

	order := prioritySort(g, completed, candidates, gaps)
	mult := cfg.PaceMultiplier(string(sc.Preferences.Pace))

	items := make([]roadmap.Item, 0, len(order))
	for _, id := range order {
		c, _ := g.Course(id)
		items = append(items, roadmap.Item{
			Ref:              c.ID,
			Kind:             roadmap.KindCourse,
			EstimatedMinutes: paced(c.DurationMinutes, mult, cfg),
			Difficulty:       c.Difficulty,
			Topics:           slices.Clone(c.Topics),
			Rationale:        rationale(c, gaps, targets),
		})
	}

	var alternatives []string
	budget, ok, err := sc.EffectiveBudget(opts.TimeConstraint)
	if err != nil {
		notes = append(notes, fmt.Sprintf("Ignored %v.", err))
	}
	if ok {
		kept, rest := fitBudget(items, budget)
		items = kept
		if len(rest) > 0 {
			alternatives = append(alternatives, remainderPath(rest, budget))
			notes = append(notes, fmt.Sprintf("%d courses did not fit the %d minute budget.", len(rest), budget))
		}
	}

	r := &roadmap.Roadmap{
		StudentID:        sc.StudentID,
		FormatVersion:    roadmap.FormatVersion,
		Items:            items,
		AlternativePaths: nonNil(alternatives),
		Factors: roadmap.Factors{
			KnowledgeGaps:     slices.Clone(sc.KnowledgeGaps),
			PreferenceSummary: sc.PreferenceSummary(),
			TimeConstraint:    sc.ConstraintSummary(opts.TimeConstraint),
			TargetSkills:      targets,
		},
		Strategy: roadmap.StrategyRuleBased,
	}
	r.Renumber()
	r.Progression = roadmap.ProgressionOf(r.Items)
	r.SuccessMetrics = roadmap.DefaultSuccessMetrics(r.Items, sc.KnowledgeGaps)
	r.Reasoning = reasoning(sc, mult, notes)
	return r
}

// eligible returns every course the student could eventually take: not
// completed and not blocked by a prerequisite outside the catalog.
func eligible(g *catalog.Graph, completed map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, id := range g.TopologicalOrder() {
		if completed[id] || g.Blocked(id, completed) {
			continue
		}
		out[id] = true
	}
	return out
}

// restrictToTargets keeps courses teaching a target skill plus everything
// they still depend on.
func restrictToTargets(g *catalog.Graph, completed, candidates map[string]bool, targets []string) map[string]bool {
	out := make(map[string]bool)
	for _, c := range g.CoursesTeaching(targets...) {
		if !candidates[c.ID] {
			continue
		}
		out[c.ID] = true
		for _, a := range g.PendingAncestors(c.ID, completed) {
			out[a] = true
		}
	}
	return out
}

// prioritySort is Kahn's algorithm over the candidate set where the ready
// queue is ordered by (gap first, easier first, id).
func prioritySort(g *catalog.Graph, completed, candidates map[string]bool, gaps map[string]bool) []string {
	inDegree := make(map[string]int, len(candidates))
	dependents := make(map[string][]string)
	for id := range candidates {
		inDegree[id] = 0
	}
	for id := range candidates {
		for _, p := range g.Prerequisites(id) {
			if completed[p] || !candidates[p] {
				continue
			}
			inDegree[id]++
			dependents[p] = append(dependents[p], id)
		}
	}

	var ready []catalog.Course
	for id, deg := range inDegree {
		if deg == 0 {
			c, _ := g.Course(id)
			ready = append(ready, c)
		}
	}

	less := func(a, b catalog.Course) int {
		ag, bg := a.Teaches(gaps), b.Teaches(gaps)
		if ag != bg {
			if ag {
				return -1
			}
			return 1
		}
		if d := a.Difficulty.Rank() - b.Difficulty.Rank(); d != 0 {
			return d
		}
		return strings.Compare(a.ID, b.ID)
	}

	order := make([]string, 0, len(candidates))
	for len(ready) > 0 {
		slices.SortFunc(ready, less)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.ID)

		for _, dep := range dependents[next.ID] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				c, _ := g.Course(dep)
				ready = append(ready, c)
			}
		}
	}
	return order
}

// paced scales minutes by the pace multiplier, rounded, never below one.
func paced(minutes int, mult float64, cfg config.Engine) int {
	if minutes <= 0 {
		minutes = cfg.DefaultRemedialMinutes
	}
	return max(1, int(math.Round(float64(minutes)*mult)))
}

// fitBudget keeps the longest prefix whose cumulative time stays within
// budget.
func fitBudget(items []roadmap.Item, budget int) (kept, rest []roadmap.Item) {
	total := 0
	for i, it := range items {
		if total+it.EstimatedMinutes > budget {
			return items[:i], items[i:]
		}
		total += it.EstimatedMinutes
	}
	return items, nil
}

func remainderPath(rest []roadmap.Item, budget int) string {
	refs := make([]string, len(rest))
	total := 0
	for i, it := range rest {
		refs[i] = it.Ref
		total += it.EstimatedMinutes
	}
	return fmt.Sprintf("Beyond the %d minute budget: continue with %s (%d more minutes)", budget, strings.Join(refs, ", "), total)
}

func rationale(c catalog.Course, gaps map[string]bool, targets []string) string {
	for _, t := range c.Topics {
		if gaps[t] {
			return fmt.Sprintf("Addresses knowledge gap in %s", t)
		}
	}
	for _, t := range c.Topics {
		if slices.Contains(targets, t) {
			return fmt.Sprintf("Teaches target skill %s", t)
		}
	}
	if len(c.Prerequisites) == 0 {
		return "Foundation course with no prerequisites"
	}
	return fmt.Sprintf("Builds on %s", strings.Join(c.Prerequisites, ", "))
}

func reasoning(sc profile.StudentContext, mult float64, notes []string) string {
	var b strings.Builder
	b.WriteString("Courses ordered by prerequisites")
	if len(sc.KnowledgeGaps) > 0 {
		fmt.Fprintf(&b, ", prioritizing gaps in %s", strings.Join(sc.KnowledgeGaps, ", "))
	}
	b.WriteString(", then by ascending difficulty.")
	if mult != 1 {
		fmt.Fprintf(&b, " Estimates scaled ×%g for %s pace.", mult, sc.Preferences.Pace)
	}
	for _, n := range notes {
		b.WriteString(" ")
		b.WriteString(n)
	}
	return b.String()
}

func uniqueSorted(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
