package profile

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Pace is the learner's preferred pace.
type Pace string

const (
	PaceSlow   Pace = "slow"
	PaceNormal Pace = "normal"
	PaceFast   Pace = "fast"
)

// Style is the learner's preferred learning style.
type Style string

const (
	StyleVisual      Style = "visual"
	StyleAuditory    Style = "auditory"
	StyleReading     Style = "reading"
	StyleKinesthetic Style = "kinesthetic"
)

// Preferences captures how a student wants to learn.
type Preferences struct {
	Pace           Pace       `json:"pace" yaml:"pace"`
	Style          Style      `json:"style" yaml:"style"`
	PreferredMedia []string   `json:"preferred_media" yaml:"preferred_media"`
	HoursPerWeek   float64    `json:"hours_per_week" yaml:"hours_per_week"`
	TargetDate     *time.Time `json:"target_date,omitempty" yaml:"target_date"`
}

// AssessmentRecord is one graded assessment. Immutable once created.
type AssessmentRecord struct {
	ID          string    `json:"id" yaml:"id"`
	Topics      []string  `json:"topics" yaml:"topics"`
	Score       float64   `json:"score" yaml:"score"`
	Passed      bool      `json:"passed" yaml:"passed"`
	WrongTopics []string  `json:"wrong_topics" yaml:"wrong_topics"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// Student is the raw record held by the profile store.
type Student struct {
	ID          string             `json:"id" yaml:"id"`
	Knowledge   map[string]float64 `json:"knowledge" yaml:"knowledge"`
	Preferences Preferences        `json:"preferences" yaml:"preferences"`
	Completed   []string           `json:"completed" yaml:"completed"`
	InProgress  []string           `json:"in_progress" yaml:"in_progress"`
}

// Records is the heterogeneous input to Aggregate.
type Records struct {
	Student     Student
	Assessments []AssessmentRecord
	// AsOf is the reference instant for time budgets.
	AsOf time.Time
}

// StudentContext is the normalized, immutable view of a student used by
// every generation strategy. Sets are sorted and de-duplicated.
type StudentContext struct {
	StudentID     string             `json:"student_id"`
	Knowledge     map[string]float64 `json:"knowledge_profile"`
	Preferences   Preferences        `json:"learning_preferences"`
	Completed     []string           `json:"completed_content"`
	InProgress    []string           `json:"in_progress_content,omitempty"`
	History       []AssessmentRecord `json:"assessment_history"`
	KnowledgeGaps []string           `json:"knowledge_gaps"`
	AsOf          time.Time          `json:"as_of"`
}

// CompletedSet returns the completed ids as a lookup set.
func (sc StudentContext) CompletedSet() map[string]bool {
	return toSet(sc.Completed)
}

// InProgressSet returns the in-progress ids as a lookup set.
func (sc StudentContext) InProgressSet() map[string]bool {
	return toSet(sc.InProgress)
}

// GapSet returns the knowledge gaps as a lookup set.
func (sc StudentContext) GapSet() map[string]bool {
	return toSet(sc.KnowledgeGaps)
}

// BudgetMinutes returns the study budget up to the target date, derived
// from hours per week. ok is false when no budget applies.
func (sc StudentContext) BudgetMinutes() (minutes int, ok bool) {
	p := sc.Preferences
	if p.TargetDate == nil || p.HoursPerWeek <= 0 {
		return 0, false
	}
	remaining := p.TargetDate.Sub(sc.AsOf)
	if remaining <= 0 {
		return 0, true
	}
	weeks := remaining.Hours() / (24 * 7)
	return int(p.HoursPerWeek * 60 * weeks), true
}

// PreferenceSummary renders the preferences as one line for roadmap
// factors and reasoning text.
func (sc StudentContext) PreferenceSummary() string {
	p := sc.Preferences
	parts := []string{fmt.Sprintf("%s pace", p.Pace)}
	if p.Style != "" {
		parts = append(parts, fmt.Sprintf("%s learner", p.Style))
	}
	if len(p.PreferredMedia) > 0 {
		parts = append(parts, "prefers "+strings.Join(p.PreferredMedia, ", "))
	}
	if p.HoursPerWeek > 0 {
		parts = append(parts, fmt.Sprintf("%g h/week", p.HoursPerWeek))
	}
	return strings.Join(parts, "; ")
}

// TimeConstraintSummary describes the target date budget, or "".
func (sc StudentContext) TimeConstraintSummary() string {
	p := sc.Preferences
	if p.TargetDate == nil {
		return ""
	}
	mins, _ := sc.BudgetMinutes()
	return fmt.Sprintf("finish by %s (%d minutes at %g h/week)", p.TargetDate.Format("2006-01-02"), mins, p.HoursPerWeek)
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// StudentSource is the read side of the student/profile store.
type StudentSource interface {
	Student(ctx context.Context, id string) (*Student, error)
}

// AssessmentSource is the read side of the assessment store.
type AssessmentSource interface {
	Assessments(ctx context.Context, studentID string) ([]AssessmentRecord, error)
}
