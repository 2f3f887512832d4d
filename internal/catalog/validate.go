package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycleDetected reports a cycle in the prerequisite relation. It is
// fatal for generation: no strategy can order a cyclic catalog.
var ErrCycleDetected = errors.New("prerequisite cycle detected")

// CycleError names the courses forming a prerequisite cycle.
// Path starts and ends with the same course id.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// validateCourses performs record-level checks before graph construction.
// Returns a combined error describing all problems found, or nil if valid.
func validateCourses(courses []Course) error {
	var errs []string

	seen := make(map[string]bool, len(courses))
	for _, c := range courses {
		if c.ID == "" {
			errs = append(errs, fmt.Sprintf("course %q has an empty id", c.Title))
			continue
		}
		if seen[c.ID] {
			errs = append(errs, fmt.Sprintf("duplicate course id: %q", c.ID))
		}
		seen[c.ID] = true

		if !c.Difficulty.Valid() {
			errs = append(errs, fmt.Sprintf("course %q: unknown difficulty %q", c.ID, c.Difficulty))
		}
		if c.DurationMinutes < 0 {
			errs = append(errs, fmt.Sprintf("course %q: DurationMinutes must be >= 0, got %d", c.ID, c.DurationMinutes))
		}
		for _, l := range c.Lessons {
			if l.ID == "" {
				errs = append(errs, fmt.Sprintf("course %q has a lesson with an empty id", c.ID))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// findCycle runs a depth-first traversal over course -> prerequisite
// edges with a recursion-stack check. Returns the first cycle found
// (in deterministic id order) or nil.
func findCycle(g *Graph) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.courses))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		prereqs := g.byID[id].Prerequisites
		sorted := make([]string, len(prereqs))
		copy(sorted, prereqs)
		sort.Strings(sorted)

		for _, p := range sorted {
			if _, ok := g.byID[p]; !ok {
				continue
			}
			switch color[p] {
			case gray:
				// Back edge: the cycle is the stack suffix starting at p.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == p {
						cycle = append(append([]string{}, stack[i:]...), p)
						break
					}
				}
				return true
			case white:
				if visit(p) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for i := range g.courses {
		id := g.courses[i].ID
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
