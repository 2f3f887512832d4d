package adjust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

func scored(id string, topic string, score float64, offset time.Duration) profile.AssessmentRecord {
	return profile.AssessmentRecord{
		ID:        id,
		Topics:    []string{topic},
		Score:     score,
		Passed:    score >= 70,
		Timestamp: day0.Add(offset),
	}
}

func TestDetectPatterns(t *testing.T) {
	cfg := config.DefaultEngine()
	history := []profile.AssessmentRecord{
		scored("a1", "algebra", 55, 0),
		scored("a2", "geometry", 90, time.Hour),
		scored("a3", "algebra", 60, 2*time.Hour),
		scored("a4", "geometry", 96, 3*time.Hour),
		scored("a5", "algebra", 40, 4*time.Hour),
		scored("a6", "stats", 75, 5*time.Hour),
		scored("a7", "stats", 70, 6*time.Hour),
		scored("a8", "physics", 10, 7*time.Hour),
	}

	got := DetectPatterns("s1", history, cfg, day0)
	require.Len(t, got, 2, "stats sits between thresholds and physics has one data point")

	assert.Equal(t, roadmap.PatternStruggle, got[0].Type)
	assert.Equal(t, "algebra", got[0].Data.Topic)
	assert.Equal(t, 51.67, got[0].Data.RollingAvg)
	assert.Equal(t, 0.4, got[0].Data.Confidence)
	assert.Equal(t, "a5", got[0].Data.SourceRecord)

	assert.Equal(t, roadmap.PatternStrength, got[1].Type)
	assert.Equal(t, "geometry", got[1].Data.Topic)
	assert.Equal(t, 93.0, got[1].Data.RollingAvg)
	assert.Equal(t, 9.0, got[1].Data.Variance)
	for _, p := range got {
		assert.Empty(t, p.ID)
		assert.Equal(t, day0, p.DetectedAt)
	}
}

func TestDetectPatterns_UsesRecentWindow(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.HistoryWindow = 2
	history := []profile.AssessmentRecord{
		scored("a1", "algebra", 10, 0),
		scored("a2", "algebra", 20, time.Hour),
		scored("a3", "algebra", 90, 2*time.Hour),
		scored("a4", "algebra", 95, 3*time.Hour),
	}

	got := DetectPatterns("s1", history, cfg, day0)
	require.Len(t, got, 1)
	assert.Equal(t, roadmap.PatternStrength, got[0].Type)
	assert.Equal(t, 2, got[0].Data.DataPoints)
}

func TestConfidence(t *testing.T) {
	cfg := config.DefaultEngine()
	assert.Equal(t, 1.0, Confidence(10, 40, cfg))
	assert.Equal(t, 0.2, Confidence(2, 10, cfg))
	assert.Equal(t, 0.0, Confidence(0, 10, cfg))
	assert.Equal(t, 0.0, Confidence(3, 0, cfg))
}

func pattern(id string, kind roadmap.PatternType, topic string, avg float64) roadmap.Pattern {
	return roadmap.Pattern{
		ID:        id,
		StudentID: "s1",
		Type:      kind,
		Data:      roadmap.PatternData{Topic: topic, RollingAvg: avg, DataPoints: 3, SourceRecord: "a3"},
	}
}

func TestPlanPatterns(t *testing.T) {
	superseded := day0
	active := []roadmap.Pattern{
		pattern("p1", roadmap.PatternStruggle, "algebra", 50),
		pattern("p2", roadmap.PatternStrength, "geometry", 90),
		pattern("p3", roadmap.PatternStrength, "stats", 88),
	}
	old := pattern("p0", roadmap.PatternStruggle, "stats", 40)
	old.SupersededAt = &superseded
	active = append(active, old)

	detected := []roadmap.Pattern{
		pattern("", roadmap.PatternStruggle, "algebra", 50),
		pattern("", roadmap.PatternStruggle, "geometry", 60),
		pattern("", roadmap.PatternStrength, "stats", 91),
	}

	plan := PlanPatterns(active, detected)
	assert.Equal(t, []string{"p2", "p3"}, plan.Supersede)
	require.Len(t, plan.Insert, 2)
	assert.Equal(t, "geometry", plan.Insert[0].Data.Topic)
	assert.Equal(t, "stats", plan.Insert[1].Data.Topic)
}

func TestPlanPatterns_NothingDetected(t *testing.T) {
	plan := PlanPatterns([]roadmap.Pattern{pattern("p1", roadmap.PatternStruggle, "algebra", 50)}, nil)
	assert.True(t, plan.Empty())
}

func TestExtractGaps(t *testing.T) {
	history := []profile.AssessmentRecord{
		{ID: "a1", Topics: []string{"algebra"}, WrongTopics: []string{"fractions"}},
		{ID: "a2", Topics: []string{"geometry"}, WrongTopics: []string{"angles"}},
		{ID: "a3", Topics: []string{"algebra", "equations"}, WrongTopics: []string{"equations"}},
	}
	trigger := profile.AssessmentRecord{ID: "a4", Topics: []string{"algebra"}, WrongTopics: []string{"linear-equations", "equations"}}

	assert.Equal(t, []string{"equations", "fractions", "linear-equations"}, ExtractGaps(trigger, history, 5))
	assert.Equal(t, []string{"equations", "linear-equations"}, ExtractGaps(trigger, history, 1))
}

func TestExtractGaps_FallsBackToTopics(t *testing.T) {
	trigger := profile.AssessmentRecord{ID: "a1", Topics: []string{"trig", "algebra"}}
	assert.Equal(t, []string{"algebra", "trig"}, ExtractGaps(trigger, nil, 5))
}

func TestConsecutiveFailures(t *testing.T) {
	history := []profile.AssessmentRecord{
		scored("a1", "algebra", 40, 0),
		scored("a2", "algebra", 80, time.Hour),
		scored("a3", "algebra", 50, 2*time.Hour),
		scored("a4", "geometry", 95, 3*time.Hour),
		scored("a5", "algebra", 45, 4*time.Hour),
	}
	assert.Equal(t, 2, ConsecutiveFailures(history[4], history))
	assert.Equal(t, 0, ConsecutiveFailures(history[3], history[:4]))
}

func TestInsertionPoint(t *testing.T) {
	g := mustGraph(t)
	items := storedRoadmap().Items
	completed := map[string]bool{"alg-basics": true}

	assert.Equal(t, 1, InsertionPoint(items, g, map[string]bool{"algebra": true}, completed))
	assert.Equal(t, 0, InsertionPoint(items, g, map[string]bool{"geometry": true}, completed))
	// calc depends on algebra only through its prerequisites.
	assert.Equal(t, 2, InsertionPoint(items, g, map[string]bool{"algebra": true}, map[string]bool{"alg-basics": true, "geometry": true, "alg-2": true}))
	assert.Equal(t, 0, InsertionPoint(items, g, map[string]bool{"chemistry": true}, completed))
}

func TestAlternativePath_PreferredMedia(t *testing.T) {
	g := mustGraph(t)
	sc := profile.StudentContext{
		StudentID:   "s1",
		Preferences: profile.Preferences{PreferredMedia: []string{"video"}},
	}
	got := AlternativePath(storedRoadmap().Items, g, sc, []string{"algebra"})
	assert.Equal(t, "Alternative for algebra: follow the video lessons alg-2-v1 (video) instead of the full course sequence", got)
}

func TestInsertAt(t *testing.T) {
	items := []roadmap.Item{{Ref: "x"}, {Ref: "y"}}
	got := insertAt(items, 1, []roadmap.Item{{Ref: "r", Kind: roadmap.KindRemedial, Difficulty: catalog.Beginner}})
	assert.Equal(t, []string{"x", "r", "y"}, itemRefs(got))
	for i, it := range got {
		assert.Equal(t, i, it.Position)
	}
	assert.Equal(t, []string{"x", "y"}, itemRefs(items), "input untouched")
}

func TestStudentLocks(t *testing.T) {
	l := NewStudentLocks()
	release, ok := l.TryLock("s1")
	require.True(t, ok)

	_, ok = l.TryLock("s1")
	assert.False(t, ok)
	other, ok := l.TryLock("s2")
	require.True(t, ok)
	other()

	release()
	release()
	again, ok := l.TryLock("s1")
	require.True(t, ok)
	again()
}
