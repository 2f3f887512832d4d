package adjust

import (
	"fmt"
	"slices"
	"strings"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// InsertionPoint returns the index of the first not-completed item that
// depends on a gap topic, either by teaching it or through a prerequisite
// that does. Without one it returns the position marker.
func InsertionPoint(items []roadmap.Item, g *catalog.Graph, gaps, completed map[string]bool) int {
	for i, it := range items {
		if completed[it.Ref] {
			continue
		}
		if dependsOnGap(it, g, gaps) {
			return i
		}
	}
	return roadmap.PositionMarker(items, completed)
}

func dependsOnGap(it roadmap.Item, g *catalog.Graph, gaps map[string]bool) bool {
	for _, t := range it.Topics {
		if gaps[t] {
			return true
		}
	}
	for _, a := range g.Ancestors(it.Ref) {
		if c, ok := g.Course(a); ok && c.Teaches(gaps) {
			return true
		}
	}
	return false
}

// insertAt returns a new slice with extra placed before index i, renumbered.
func insertAt(items []roadmap.Item, i int, extra []roadmap.Item) []roadmap.Item {
	out := make([]roadmap.Item, 0, len(items)+len(extra))
	out = append(out, items[:i]...)
	out = append(out, extra...)
	out = append(out, items[i:]...)
	for j := range out {
		out[j].Position = j
	}
	return out
}

// AlternativePath describes a different content-type sequence for the
// not-completed items touching the gap topics: lessons in the student's
// preferred media where the catalog has them, otherwise a slower review
// track. The original sequence is left in place.
func AlternativePath(items []roadmap.Item, g *catalog.Graph, sc profile.StudentContext, gaps []string) string {
	gapSet := make(map[string]bool, len(gaps))
	for _, t := range gaps {
		gapSet[t] = true
	}
	completed := sc.CompletedSet()
	media := make(map[string]bool, len(sc.Preferences.PreferredMedia))
	for _, m := range sc.Preferences.PreferredMedia {
		media[m] = true
	}

	var affected, lessons []string
	for _, it := range items {
		if completed[it.Ref] || !touches(it, gapSet) {
			continue
		}
		affected = append(affected, it.Ref)
		node, ok := g.Resolve(it.Ref)
		if !ok || node.Kind != catalog.NodeCourse {
			continue
		}
		for _, l := range g.Lessons(node.ID) {
			if media[l.ContentType] && !completed[l.ID] {
				lessons = append(lessons, fmt.Sprintf("%s (%s)", l.ID, l.ContentType))
			}
		}
	}

	topic := strings.Join(gaps, ", ")
	switch {
	case len(lessons) > 0:
		return fmt.Sprintf("Alternative for %s: follow the %s lessons %s instead of the full course sequence",
			topic, strings.Join(slices.Sorted(slices.Values(sc.Preferences.PreferredMedia)), "/"), strings.Join(lessons, ", "))
	case len(affected) > 0:
		return fmt.Sprintf("Alternative for %s: pause %s and work through targeted review of %s before resuming",
			topic, strings.Join(affected, ", "), topic)
	default:
		return fmt.Sprintf("Alternative for %s: schedule a targeted review session before the next assessment", topic)
	}
}

func touches(it roadmap.Item, gaps map[string]bool) bool {
	for _, t := range it.Topics {
		if gaps[t] {
			return true
		}
	}
	return false
}
