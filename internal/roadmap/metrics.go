package roadmap

import (
	"fmt"
	"strings"
)

// DefaultSuccessMetrics derives measurable outcomes from a path and the
// student's gaps.
func DefaultSuccessMetrics(items []Item, gaps []string) []string {
	out := []string{fmt.Sprintf("Complete all %d roadmap items", len(items))}
	if len(gaps) > 0 {
		out = append(out, fmt.Sprintf("Score at least 70 on assessments covering %s", strings.Join(gaps, ", ")))
	}
	return out
}
