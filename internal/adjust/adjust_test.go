package adjust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/engine"
	"github.com/abhisek/pathfinder/internal/metrics"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

type memRoadmaps struct {
	mu   sync.Mutex
	m    map[string]*roadmap.Roadmap
	puts int
}

func (s *memRoadmaps) GetRoadmap(_ context.Context, id string) (*roadmap.Roadmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[id]
	if !ok {
		return nil, roadmap.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memRoadmaps) PutRoadmap(_ context.Context, r *roadmap.Roadmap, expected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.m[r.StudentID]; old.Version != expected {
		return fmt.Errorf("%w: stored %d, expected %d", roadmap.ErrConcurrentAdjustment, old.Version, expected)
	}
	s.m[r.StudentID] = r.Clone()
	s.puts++
	return nil
}

type memPatterns struct {
	mu   sync.Mutex
	rows []roadmap.Pattern
}

func (s *memPatterns) ActivePatterns(_ context.Context, id string) ([]roadmap.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []roadmap.Pattern
	for _, p := range s.rows {
		if p.StudentID == id && p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPatterns) ApplyPatterns(_ context.Context, _ string, supersede []string, insert []roadmap.Pattern, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(supersede))
	for _, id := range supersede {
		drop[id] = true
	}
	for i := range s.rows {
		if drop[s.rows[i].ID] {
			t := at
			s.rows[i].SupersededAt = &t
		}
	}
	s.rows = append(s.rows, insert...)
	return nil
}

func (s *memPatterns) active() []roadmap.Pattern {
	out, _ := s.ActivePatterns(context.Background(), "s1")
	return out
}

type staticProfiles map[string]profile.StudentContext

func (p staticProfiles) Build(_ context.Context, id string) (profile.StudentContext, error) {
	sc, ok := p[id]
	if !ok {
		return profile.StudentContext{}, fmt.Errorf("student %s not found", id)
	}
	return sc, nil
}

type failingRemedial struct{ err error }

func (f failingRemedial) Remedial(context.Context, profile.StudentContext, *catalog.Graph, []string, []roadmap.Item, int) ([]roadmap.Item, roadmap.Strategy, error) {
	return nil, "", f.err
}

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func algebraCatalog() catalog.StaticSource {
	return catalog.StaticSource{
		{ID: "alg-basics", Title: "Algebra Basics", Difficulty: catalog.Beginner, DurationMinutes: 60, Topics: []string{"algebra"}, Published: true},
		{ID: "alg-2", Title: "Algebra II", Difficulty: catalog.Intermediate, DurationMinutes: 90, Topics: []string{"algebra"}, Prerequisites: []string{"alg-basics"}, Published: true,
			Lessons: []catalog.Lesson{{ID: "alg-2-v1", Title: "Equations on video", DurationMinutes: 20, ContentType: "video"}}},
		{ID: "geometry", Title: "Geometry", Difficulty: catalog.Beginner, DurationMinutes: 45, Topics: []string{"geometry"}, Published: true},
		{ID: "calc", Title: "Calculus", Difficulty: catalog.Advanced, DurationMinutes: 120, Topics: []string{"calculus"}, Prerequisites: []string{"alg-2"}, Published: true},
	}
}

func storedRoadmap() *roadmap.Roadmap {
	r := &roadmap.Roadmap{
		ID:            "rm-1",
		StudentID:     "s1",
		Version:       1,
		FormatVersion: roadmap.FormatVersion,
		Items: []roadmap.Item{
			{Ref: "geometry", Kind: roadmap.KindCourse, EstimatedMinutes: 45, Difficulty: catalog.Beginner, Topics: []string{"geometry"}},
			{Ref: "alg-2", Kind: roadmap.KindCourse, EstimatedMinutes: 90, Difficulty: catalog.Intermediate, Topics: []string{"algebra"}},
			{Ref: "calc", Kind: roadmap.KindCourse, EstimatedMinutes: 120, Difficulty: catalog.Advanced, Topics: []string{"calculus"}},
		},
		Reasoning:        "Geometry first, then the algebra track.",
		AlternativePaths: []string{},
		SuccessMetrics:   []string{"Complete all 3 roadmap items"},
		Progression:      roadmap.Progression{Start: catalog.Beginner, End: catalog.Advanced},
		Strategy:         roadmap.StrategyRuleBased,
		CreatedAt:        day0,
	}
	r.Renumber()
	return r
}

func assessment(id string, score float64, passed bool, offset time.Duration) profile.AssessmentRecord {
	rec := profile.AssessmentRecord{
		ID:        id,
		Topics:    []string{"algebra"},
		Score:     score,
		Passed:    passed,
		Timestamp: day0.Add(offset),
	}
	if !passed {
		rec.WrongTopics = []string{"algebra"}
	}
	return rec
}

type fixture struct {
	roadmaps *memRoadmaps
	patterns *memPatterns
	engine   *Engine
}

func newFixture(t *testing.T, history []profile.AssessmentRecord, remedial RemedialSource) *fixture {
	t.Helper()
	cfg := config.DefaultEngine()
	if remedial == nil {
		remedial = engine.NewService(engine.Deps{}, cfg)
	}
	f := &fixture{
		roadmaps: &memRoadmaps{m: map[string]*roadmap.Roadmap{"s1": storedRoadmap()}},
		patterns: &memPatterns{},
	}
	n := 0
	f.engine = New(Deps{
		Catalog: algebraCatalog(),
		Profiles: staticProfiles{"s1": {
			StudentID:   "s1",
			Preferences: profile.Preferences{Pace: profile.PaceNormal},
			Completed:   []string{"alg-basics"},
			History:     history,
		}},
		Roadmaps: f.roadmaps,
		Patterns: f.patterns,
		Remedial: remedial,
	}, cfg,
		WithMetrics(metrics.New()),
		WithClock(func() time.Time { return day0.Add(72 * time.Hour) }),
		WithIDs(func() string { n++; return fmt.Sprintf("p-%d", n) }),
	)
	return f
}

func itemRefs(items []roadmap.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Ref
	}
	return out
}

func TestAdjust_StruggleInsertsRemedialBeforeDependentItem(t *testing.T) {
	history := []profile.AssessmentRecord{
		assessment("a1", 55, false, 0),
		assessment("a2", 60, false, 24*time.Hour),
	}
	f := newFixture(t, history, nil)

	out, err := f.engine.Adjust(context.Background(), "s1", assessment("a3", 40, false, 48*time.Hour))
	require.NoError(t, err)

	require.Len(t, out.Patterns, 1)
	p := out.Patterns[0]
	assert.Equal(t, roadmap.PatternStruggle, p.Type)
	assert.Equal(t, "algebra", p.Data.Topic)
	assert.GreaterOrEqual(t, p.Data.Confidence, 0.4)
	assert.Equal(t, 3, p.Data.DataPoints)
	assert.Equal(t, "a3", p.Data.SourceRecord)

	assert.Equal(t, []string{"algebra"}, out.Gaps)
	assert.True(t, out.Mutated)
	assert.Equal(t, roadmap.StrategyRuleBased, out.RemedialStrategy)
	assert.Equal(t, []string{"geometry", "review:algebra", "alg-2", "calc"}, itemRefs(out.Roadmap.Items))
	assert.Equal(t, 2, out.Roadmap.Version)
	assert.Equal(t, day0.Add(72*time.Hour), out.Roadmap.LastAdjustedAt)
	assert.Contains(t, out.Roadmap.Reasoning, "Assessment a3 scored 40")
	assert.Equal(t, 1, f.roadmaps.puts)

	stored, err := f.roadmaps.GetRoadmap(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 45+30+90+120, stored.TotalMinutes)
	assert.NoError(t, roadmap.Check(stored, mustGraph(t), map[string]bool{"alg-basics": true}))

	active := f.patterns.active()
	require.Len(t, active, 1)
	assert.Equal(t, "p-1", active[0].ID)
}

func TestAdjust_RepeatedFailuresAddAlternativePath(t *testing.T) {
	history := []profile.AssessmentRecord{assessment("a1", 50, false, 0)}
	f := newFixture(t, history, nil)

	out, err := f.engine.Adjust(context.Background(), "s1", assessment("a2", 45, false, time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, out.AlternativePath)
	assert.True(t, strings.HasPrefix(out.AlternativePath, "Alternative for algebra"))
	assert.Contains(t, out.Roadmap.AlternativePaths, out.AlternativePath)
}

func TestAdjust_SingleFailureHasNoAlternativePath(t *testing.T) {
	f := newFixture(t, nil, nil)

	out, err := f.engine.Adjust(context.Background(), "s1", assessment("a1", 50, false, 0))
	require.NoError(t, err)
	assert.Empty(t, out.AlternativePath)
	assert.Empty(t, out.Roadmap.AlternativePaths)
}

func TestAdjust_PassedOnlyUpdatesPatterns(t *testing.T) {
	history := []profile.AssessmentRecord{
		assessment("a1", 92, true, 0),
		assessment("a2", 95, true, time.Hour),
	}
	f := newFixture(t, history, nil)

	out, err := f.engine.Adjust(context.Background(), "s1", assessment("a3", 90, true, 2*time.Hour))
	require.NoError(t, err)
	assert.False(t, out.Mutated)
	assert.Equal(t, 0, f.roadmaps.puts)
	require.Len(t, out.Patterns, 1)
	assert.Equal(t, roadmap.PatternStrength, out.Patterns[0].Type)
	assert.Equal(t, 1, out.Roadmap.Version)
}

func TestAdjust_CapsRemedialItems(t *testing.T) {
	f := newFixture(t, nil, nil)
	trigger := assessment("a1", 20, false, 0)
	trigger.Topics = []string{"algebra", "chemistry", "biology", "history"}
	trigger.WrongTopics = trigger.Topics

	out, err := f.engine.Adjust(context.Background(), "s1", trigger)
	require.NoError(t, err)
	assert.Len(t, out.Inserted, config.DefaultEngine().MaxRemedialPerAdjustment)
	assert.Equal(t, 3, out.Roadmap.RemedialCount())
}

func TestAdjust_DegradesWhenNoRemedialAvailable(t *testing.T) {
	history := []profile.AssessmentRecord{assessment("a1", 30, false, 0)}
	f := newFixture(t, history, failingRemedial{err: engine.ErrNoRemedial})

	out, err := f.engine.Adjust(context.Background(), "s1", assessment("a2", 35, false, time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, roadmap.ErrAdjustmentDegraded))
	require.NotNil(t, out)
	assert.True(t, out.Degraded)
	assert.False(t, out.Mutated)
	assert.Equal(t, 0, f.roadmaps.puts)
	assert.Len(t, f.patterns.active(), 1, "patterns are still recorded")
}

func TestAdjust_ConcurrentAdjustmentRejected(t *testing.T) {
	f := newFixture(t, nil, nil)
	release, ok := f.engine.locks.TryLock("s1")
	require.True(t, ok)

	_, err := f.engine.Adjust(context.Background(), "s1", assessment("a1", 40, false, 0))
	assert.ErrorIs(t, err, roadmap.ErrConcurrentAdjustment)
	assert.Equal(t, 0, f.roadmaps.puts)

	release()
	_, err = f.engine.Adjust(context.Background(), "s1", assessment("a1", 40, false, 0))
	assert.NoError(t, err)
}

func TestAdjust_StaleVersionRejected(t *testing.T) {
	f := newFixture(t, nil, nil)
	// A writer that bumps the version between read and write.
	racer := &racingRoadmaps{memRoadmaps: f.roadmaps}
	f.engine.deps.Roadmaps = racer

	_, err := f.engine.Adjust(context.Background(), "s1", assessment("a1", 40, false, 0))
	assert.ErrorIs(t, err, roadmap.ErrConcurrentAdjustment)
}

type racingRoadmaps struct{ *memRoadmaps }

func (r *racingRoadmaps) GetRoadmap(ctx context.Context, id string) (*roadmap.Roadmap, error) {
	got, err := r.memRoadmaps.GetRoadmap(ctx, id)
	r.mu.Lock()
	r.m[id].Version++
	r.mu.Unlock()
	return got, err
}

func TestAdjust_MissingRoadmapStillRecordsPatterns(t *testing.T) {
	history := []profile.AssessmentRecord{assessment("a1", 30, false, 0)}
	f := newFixture(t, history, nil)
	delete(f.roadmaps.m, "s1")

	out, err := f.engine.Adjust(context.Background(), "s1", assessment("a2", 35, false, time.Hour))
	require.NoError(t, err)
	assert.Nil(t, out.Roadmap)
	assert.False(t, out.Mutated)
	assert.Equal(t, 0, f.roadmaps.puts)
	require.Len(t, out.Patterns, 1)
	assert.Equal(t, roadmap.PatternStruggle, out.Patterns[0].Type)
	assert.Len(t, f.patterns.active(), 1)
}

func TestAdjust_RegenerateReusesAdjustedRoadmap(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	out, err := f.engine.Adjust(ctx, "s1", assessment("a1", 40, false, 0))
	require.NoError(t, err)
	require.True(t, out.Mutated)

	svc := engine.NewService(engine.Deps{
		Catalog:  f.engine.deps.Catalog,
		Profiles: f.engine.deps.Profiles,
		Store:    f.roadmaps,
	}, config.DefaultEngine())
	res, err := svc.Generate(ctx, engine.Request{StudentID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.Reused, "a plain regenerate must keep the adjusted roadmap")
	assert.Equal(t, 2, res.Roadmap.Version)
	assert.Equal(t, out.Roadmap.RemedialCount(), res.Roadmap.RemedialCount())
	assert.Equal(t, 1, f.roadmaps.puts)
}

func TestAdjust_PatternsAreSupersededNotDuplicated(t *testing.T) {
	history := []profile.AssessmentRecord{
		assessment("a1", 55, false, 0),
		assessment("a2", 60, false, time.Hour),
	}
	f := newFixture(t, history, nil)

	_, err := f.engine.Refresh(context.Background(), "s1")
	require.NoError(t, err)
	_, err = f.engine.Refresh(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, f.patterns.rows, 1, "identical evidence writes nothing")

	_, err = f.engine.Adjust(context.Background(), "s1", assessment("a3", 40, false, 2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, f.patterns.rows, 2)
	active := f.patterns.active()
	require.Len(t, active, 1)
	assert.Equal(t, "a3", active[0].Data.SourceRecord)
}

func mustGraph(t *testing.T) *catalog.Graph {
	t.Helper()
	g, err := catalog.LoadFrom(context.Background(), algebraCatalog(), catalog.LoadOptions{})
	require.NoError(t, err)
	return g
}
