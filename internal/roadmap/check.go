package roadmap

import (
	"fmt"
	"strings"

	"github.com/abhisek/pathfinder/internal/catalog"
)

// Check verifies the structural invariants of a roadmap against the
// graph it was generated from:
//
//   - positions are dense from 0 and the total equals the sum of items
//   - every estimate is positive
//   - every reference resolves in the graph, unless the item is remedial
//   - every prerequisite of an item is completed or appears earlier
//   - the difficulty progression is ordered
//
// Returns a combined error describing all problems found, or nil.
func Check(r *Roadmap, g *catalog.Graph, completed map[string]bool) error {
	var errs []string

	seenAt := make(map[string]int, len(r.Items))
	total := 0
	for i, it := range r.Items {
		if it.Position != i {
			errs = append(errs, fmt.Sprintf("item %d (%s): position %d, want %d", i, it.Ref, it.Position, i))
		}
		if it.EstimatedMinutes <= 0 {
			errs = append(errs, fmt.Sprintf("item %d (%s): non-positive estimate %d", i, it.Ref, it.EstimatedMinutes))
		}
		if !it.Kind.Valid() {
			errs = append(errs, fmt.Sprintf("item %d (%s): unknown kind %q", i, it.Ref, it.Kind))
		}
		total += it.EstimatedMinutes

		node, ok := g.Resolve(it.Ref)
		switch {
		case !ok && !it.IsRemedial():
			errs = append(errs, fmt.Sprintf("item %d: unresolvable reference %q", i, it.Ref))
		case ok:
			for _, p := range node.Prerequisites {
				if completed[p] {
					continue
				}
				if j, in := seenAt[p]; !in || j >= i {
					errs = append(errs, fmt.Sprintf("item %d (%s): prerequisite %q not satisfied before it", i, it.Ref, p))
				}
			}
		}
		if _, dup := seenAt[it.Ref]; !dup {
			seenAt[it.Ref] = i
		}
	}

	if total != r.TotalMinutes {
		errs = append(errs, fmt.Sprintf("total estimate %d, want %d", r.TotalMinutes, total))
	}
	if r.Progression.End.Less(r.Progression.Start) {
		errs = append(errs, fmt.Sprintf("difficulty progression %s > %s", r.Progression.Start, r.Progression.End))
	}
	switch r.Strategy {
	case StrategyAI, StrategyRuleBased, StrategyHybrid:
	default:
		errs = append(errs, fmt.Sprintf("unknown generation strategy %q", r.Strategy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrInvalidRoadmap, strings.Join(errs, "\n  "))
	}
	return nil
}
