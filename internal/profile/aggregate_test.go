package profile

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/abhisek/pathfinder/internal/config"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleRecords() Records {
	return Records{
		Student: Student{
			ID:        "s1",
			Knowledge: map[string]float64{"algebra": 0.3, "geometry": 0.9, "calculus": 1.4},
			Preferences: Preferences{
				Style:          StyleVisual,
				PreferredMedia: []string{"video", "interactive", "video"},
				HoursPerWeek:   5,
			},
			Completed: []string{"B", "A", "A"},
		},
		Assessments: []AssessmentRecord{
			{ID: "a2", Topics: []string{"trigonometry"}, Score: 40, Passed: false, WrongTopics: []string{"identities"}, Timestamp: t0.Add(time.Hour)},
			{ID: "a1", Topics: []string{"geometry"}, Score: 90, Passed: true, Timestamp: t0},
		},
		AsOf: t0,
	}
}

func TestAggregate_Gaps(t *testing.T) {
	sc := Aggregate(sampleRecords(), config.DefaultEngine())
	want := []string{"algebra", "identities", "trigonometry"}
	if !slices.Equal(sc.KnowledgeGaps, want) {
		t.Errorf("gaps = %v, want %v", sc.KnowledgeGaps, want)
	}
}

func TestAggregate_Normalizes(t *testing.T) {
	sc := Aggregate(sampleRecords(), config.DefaultEngine())
	if got := sc.Knowledge["calculus"]; got != 1 {
		t.Errorf("calculus proficiency = %v, want clamped to 1", got)
	}
	if !slices.Equal(sc.Completed, []string{"A", "B"}) {
		t.Errorf("completed = %v", sc.Completed)
	}
	if !slices.Equal(sc.Preferences.PreferredMedia, []string{"interactive", "video"}) {
		t.Errorf("media = %v", sc.Preferences.PreferredMedia)
	}
	if sc.Preferences.Pace != PaceNormal {
		t.Errorf("pace = %q, want default normal", sc.Preferences.Pace)
	}
	if sc.History[0].ID != "a1" || sc.History[1].ID != "a2" {
		t.Errorf("history not sorted by timestamp: %v, %v", sc.History[0].ID, sc.History[1].ID)
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	cfg := config.DefaultEngine()
	a := Aggregate(sampleRecords(), cfg)

	rec := sampleRecords()
	slices.Reverse(rec.Assessments)
	slices.Reverse(rec.Student.Completed)
	b := Aggregate(rec, cfg)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("aggregate not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestAggregate_GapThresholdConfigurable(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.GapThreshold = 0.95
	sc := Aggregate(sampleRecords(), cfg)
	if !slices.Contains(sc.KnowledgeGaps, "geometry") {
		t.Errorf("geometry (0.9) should be a gap at threshold 0.95: %v", sc.KnowledgeGaps)
	}
}

func TestBudgetMinutes(t *testing.T) {
	sc := Aggregate(sampleRecords(), config.DefaultEngine())
	if _, ok := sc.BudgetMinutes(); ok {
		t.Fatal("no target date should mean no budget")
	}

	target := t0.Add(14 * 24 * time.Hour)
	sc.Preferences.TargetDate = &target
	got, ok := sc.BudgetMinutes()
	if !ok || got != 600 {
		t.Errorf("budget = %d (ok=%v), want 600", got, ok)
	}
}

type stubStudents struct {
	s   *Student
	err error
}

func (s stubStudents) Student(context.Context, string) (*Student, error) { return s.s, s.err }

type stubAssessments []AssessmentRecord

func (s stubAssessments) Assessments(context.Context, string) ([]AssessmentRecord, error) {
	return s, nil
}

func TestAggregator_Build(t *testing.T) {
	rec := sampleRecords()
	agg := &Aggregator{
		Students:    stubStudents{s: &rec.Student},
		Assessments: stubAssessments(rec.Assessments),
		Config:      config.DefaultEngine(),
		Now:         func() time.Time { return t0 },
	}
	sc, err := agg.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !reflect.DeepEqual(sc, Aggregate(rec, config.DefaultEngine())) {
		t.Error("Build should match Aggregate over the same records")
	}
}

func TestAggregator_BuildError(t *testing.T) {
	boom := errors.New("boom")
	agg := &Aggregator{
		Students:    stubStudents{err: boom},
		Assessments: stubAssessments(nil),
		Config:      config.DefaultEngine(),
	}
	if _, err := agg.Build(context.Background(), "s1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
