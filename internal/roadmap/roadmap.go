package roadmap

import (
	"slices"
	"time"

	"github.com/abhisek/pathfinder/internal/catalog"
)

// FormatVersion is the semantic version of the Roadmap layout. A stored
// roadmap whose major version differs is regenerated instead of reused.
const FormatVersion = "v1.1.0"

// ItemKind classifies a path item.
type ItemKind string

const (
	KindCourse     ItemKind = "course"
	KindLesson     ItemKind = "lesson"
	KindAssessment ItemKind = "assessment"
	KindRemedial   ItemKind = "remedial"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	switch k {
	case KindCourse, KindLesson, KindAssessment, KindRemedial:
		return true
	}
	return false
}

// ItemStatus is derived from student progress and never stored.
type ItemStatus string

const (
	StatusNotStarted ItemStatus = "not_started"
	StatusInProgress ItemStatus = "in_progress"
	StatusCompleted  ItemStatus = "completed"
)

// Strategy records how a roadmap was produced.
type Strategy string

const (
	StrategyAI        Strategy = "ai"
	StrategyRuleBased Strategy = "rule_based"
	StrategyHybrid    Strategy = "hybrid"
)

// Item is one step of a roadmap.
type Item struct {
	Position         int                `json:"position"`
	Ref              string             `json:"reference"`
	Kind             ItemKind           `json:"kind"`
	EstimatedMinutes int                `json:"estimated_minutes"`
	Difficulty       catalog.Difficulty `json:"difficulty"`
	Rationale        string             `json:"rationale,omitempty"`
	Topics           []string           `json:"topics,omitempty"`
}

// IsRemedial reports whether the item was inserted to address a gap.
func (it Item) IsRemedial() bool {
	return it.Kind == KindRemedial
}

// Progression is the difficulty span of a roadmap. Start <= End.
type Progression struct {
	Start catalog.Difficulty `json:"start"`
	End   catalog.Difficulty `json:"end"`
}

// Factors summarizes the inputs that personalized a roadmap.
type Factors struct {
	KnowledgeGaps     []string `json:"knowledge_gaps"`
	PreferenceSummary string   `json:"preference_summary"`
	TimeConstraint    string   `json:"time_constraint,omitempty"`
	TargetSkills      []string `json:"target_skills,omitempty"`
}

// Repair records one change the validator made to provider output.
type Repair struct {
	Kind   string `json:"kind"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// Scope is the request a roadmap answers: the options that, with the
// student context, decide its request key.
type Scope struct {
	TargetSkills   []string `json:"target_skills,omitempty"`
	TimeConstraint string   `json:"time_constraint,omitempty"`
}

// Roadmap is the ordered, validated learning path for one student.
type Roadmap struct {
	ID               string      `json:"id"`
	StudentID        string      `json:"student_id"`
	Version          int         `json:"version"`
	FormatVersion    string      `json:"format_version"`
	RequestKey       string      `json:"request_key"`
	Items            []Item      `json:"learning_path"`
	TotalMinutes     int         `json:"total_estimated_minutes"`
	Reasoning        string      `json:"personalization_reasoning"`
	AlternativePaths []string    `json:"alternative_paths"`
	SuccessMetrics   []string    `json:"success_metrics"`
	Progression      Progression `json:"difficulty_progression"`
	Factors          Factors     `json:"personalization_factors"`
	Scope            Scope       `json:"request_scope"`
	Strategy         Strategy    `json:"generation_strategy"`
	Repairs          []Repair    `json:"repairs,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	LastAdjustedAt   time.Time   `json:"last_adjusted_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing the
// stored artifact.
func (r *Roadmap) Clone() *Roadmap {
	if r == nil {
		return nil
	}
	out := *r
	out.Items = make([]Item, len(r.Items))
	for i, it := range r.Items {
		it.Topics = slices.Clone(it.Topics)
		out.Items[i] = it
	}
	out.AlternativePaths = slices.Clone(r.AlternativePaths)
	out.SuccessMetrics = slices.Clone(r.SuccessMetrics)
	out.Factors.KnowledgeGaps = slices.Clone(r.Factors.KnowledgeGaps)
	out.Factors.TargetSkills = slices.Clone(r.Factors.TargetSkills)
	out.Scope.TargetSkills = slices.Clone(r.Scope.TargetSkills)
	out.Repairs = slices.Clone(r.Repairs)
	return &out
}

// Renumber assigns dense positions from array order and recomputes the
// total estimated time.
func (r *Roadmap) Renumber() {
	total := 0
	for i := range r.Items {
		r.Items[i].Position = i
		total += r.Items[i].EstimatedMinutes
	}
	r.TotalMinutes = total
}

// RemedialCount returns the number of remedial items in the path.
func (r *Roadmap) RemedialCount() int {
	n := 0
	for _, it := range r.Items {
		if it.IsRemedial() {
			n++
		}
	}
	return n
}

// ProgressionOf computes the difficulty span of items: the easiest level
// as start, the hardest as end. An empty path spans beginner..beginner.
func ProgressionOf(items []Item) Progression {
	p := Progression{Start: catalog.Beginner, End: catalog.Beginner}
	first := true
	for _, it := range items {
		if !it.Difficulty.Valid() {
			continue
		}
		if first {
			p.Start, p.End = it.Difficulty, it.Difficulty
			first = false
			continue
		}
		if it.Difficulty.Less(p.Start) {
			p.Start = it.Difficulty
		}
		if p.End.Less(it.Difficulty) {
			p.End = it.Difficulty
		}
	}
	return p
}

// StatusOf derives an item's status from the student's progress.
func StatusOf(it Item, completed, inProgress map[string]bool) ItemStatus {
	switch {
	case completed[it.Ref]:
		return StatusCompleted
	case inProgress[it.Ref]:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// PositionMarker returns the index of the first item that is not
// completed, or len(items) when everything is done.
func PositionMarker(items []Item, completed map[string]bool) int {
	for i, it := range items {
		if !completed[it.Ref] {
			return i
		}
	}
	return len(items)
}
