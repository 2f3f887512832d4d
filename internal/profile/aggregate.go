package profile

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/pathfinder/internal/config"
)

// Aggregate turns raw student records into a StudentContext. It is pure:
// the same records and config always produce the same context.
func Aggregate(rec Records, cfg config.Engine) StudentContext {
	s := rec.Student

	knowledge := make(map[string]float64, len(s.Knowledge))
	for topic, score := range s.Knowledge {
		knowledge[topic] = clamp01(score)
	}

	history := make([]AssessmentRecord, len(rec.Assessments))
	for i, a := range rec.Assessments {
		a.Topics = sortedSet(a.Topics)
		a.WrongTopics = sortedSet(a.WrongTopics)
		a.Score = clampScore(a.Score)
		history[i] = a
	}
	SortHistory(history)

	prefs := s.Preferences
	prefs.PreferredMedia = sortedSet(prefs.PreferredMedia)
	if prefs.Pace == "" {
		prefs.Pace = PaceNormal
	}

	gaps := map[string]bool{}
	for topic, score := range knowledge {
		if score < cfg.GapThreshold {
			gaps[topic] = true
		}
	}
	for _, a := range history {
		if a.Passed {
			continue
		}
		for _, t := range a.Topics {
			gaps[t] = true
		}
		for _, t := range a.WrongTopics {
			gaps[t] = true
		}
	}

	return StudentContext{
		StudentID:     s.ID,
		Knowledge:     knowledge,
		Preferences:   prefs,
		Completed:     sortedSet(s.Completed),
		InProgress:    sortedSet(s.InProgress),
		History:       history,
		KnowledgeGaps: slices.Sorted(maps.Keys(gaps)),
		AsOf:          rec.AsOf,
	}
}

// SortHistory orders assessments by timestamp, then id.
func SortHistory(h []AssessmentRecord) {
	slices.SortStableFunc(h, func(a, b AssessmentRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func clampScore(v float64) float64 {
	return min(max(v, 0), 100)
}

func sortedSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Aggregator builds a StudentContext from the live stores.
type Aggregator struct {
	Students    StudentSource
	Assessments AssessmentSource
	Config      config.Engine
	// Now defaults to time.Now.
	Now func() time.Time
}

// Build fetches the student's profile and assessment history in parallel
// and aggregates them.
func (a *Aggregator) Build(ctx context.Context, studentID string) (StudentContext, error) {
	var (
		student     *Student
		assessments []AssessmentRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := a.Students.Student(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load student %s: %w", studentID, err)
		}
		student = s
		return nil
	})
	g.Go(func() error {
		list, err := a.Assessments.Assessments(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load assessments for %s: %w", studentID, err)
		}
		assessments = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return StudentContext{}, err
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return Aggregate(Records{
		Student:     *student,
		Assessments: assessments,
		AsOf:        now().UTC(),
	}, a.Config), nil
}
