package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/pathfinder/internal/aigen"
	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/llm"
	"github.com/abhisek/pathfinder/internal/metrics"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

type memStore struct {
	mu   sync.Mutex
	m    map[string]*roadmap.Roadmap
	puts int
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string]*roadmap.Roadmap)}
}

func (s *memStore) GetRoadmap(_ context.Context, id string) (*roadmap.Roadmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[id]
	if !ok {
		return nil, roadmap.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memStore) PutRoadmap(_ context.Context, r *roadmap.Roadmap, expected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := 0
	if old, ok := s.m[r.StudentID]; ok {
		current = old.Version
	}
	if current != expected {
		return fmt.Errorf("%w: stored version %d, expected %d", roadmap.ErrConcurrentAdjustment, current, expected)
	}
	s.m[r.StudentID] = r.Clone()
	s.puts++
	return nil
}

type profiles map[string]profile.StudentContext

func (p profiles) Build(_ context.Context, id string) (profile.StudentContext, error) {
	sc, ok := p[id]
	if !ok {
		return profile.StudentContext{}, fmt.Errorf("student %s not found", id)
	}
	return sc, nil
}

type buildFunc func(ctx context.Context, id string) (profile.StudentContext, error)

func (f buildFunc) Build(ctx context.Context, id string) (profile.StudentContext, error) {
	return f(ctx, id)
}

func abCatalog() catalog.StaticSource {
	return catalog.StaticSource{
		{ID: "A", Title: "Course A", Difficulty: catalog.Beginner, DurationMinutes: 60, Topics: []string{"algebra"}, Published: true},
		{ID: "B", Title: "Course B", Difficulty: catalog.Intermediate, DurationMinutes: 90, Topics: []string{"algebra"}, Prerequisites: []string{"A"}, Published: true},
	}
}

func students() profiles {
	return profiles{"s1": {StudentID: "s1", Preferences: profile.Preferences{Pace: profile.PaceNormal}}}
}

func fixedClock() time.Time {
	return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func newService(t *testing.T, store *memStore, ai Requester, src catalog.Source) *Service {
	t.Helper()
	n := 0
	return NewService(Deps{
		Catalog:  src,
		Profiles: students(),
		Store:    store,
		AI:       ai,
	}, config.DefaultEngine(),
		WithClock(fixedClock),
		WithMetrics(metrics.New()),
		WithIDs(func() string { n++; return fmt.Sprintf("rm-%d", n) }),
	)
}

func requester(p llm.Provider) *aigen.Requester {
	return aigen.New(p, aigen.DefaultConfig())
}

func aiPayload(refs ...string) json.RawMessage {
	items := make([]map[string]any, len(refs))
	for i, r := range refs {
		items[i] = map[string]any{"reference": r, "kind": "course", "estimated_minutes": 60, "rationale": "fits"}
	}
	b, _ := json.Marshal(map[string]any{
		"learning_path":             items,
		"difficulty_progression":    map[string]string{"start": "beginner", "end": "intermediate"},
		"personalization_reasoning": "Start with the basics.",
		"success_metrics":           []string{"Pass the algebra assessment"},
	})
	return b
}

func refs(r *roadmap.Roadmap) []string {
	out := make([]string, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Ref
	}
	return out
}

func TestGenerate_RuleBasedWhenAIDisabled(t *testing.T) {
	store := newMemStore()
	res, err := newService(t, store, nil, abCatalog()).Generate(context.Background(), Request{StudentID: "s1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	wantTrace := []State{StateStart, StateRuleBased, StateDone}
	if !slices.Equal(res.Trace, wantTrace) {
		t.Errorf("trace = %v, want %v", res.Trace, wantTrace)
	}
	if got := refs(res.Roadmap); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("path = %v, want [A B]", got)
	}
	if res.Roadmap.Strategy != roadmap.StrategyRuleBased {
		t.Errorf("strategy = %q", res.Roadmap.Strategy)
	}
	if res.Roadmap.Version != 1 || res.Roadmap.ID != "rm-1" {
		t.Errorf("identity = %s v%d", res.Roadmap.ID, res.Roadmap.Version)
	}
	if !res.Roadmap.CreatedAt.Equal(fixedClock()) {
		t.Errorf("created_at = %v", res.Roadmap.CreatedAt)
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want 1", store.puts)
	}
}

func TestGenerate_AIReorderedIsHybrid(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: aiPayload("B", "A")})
	res, err := newService(t, newMemStore(), requester(mock), abCatalog()).Generate(context.Background(), Request{StudentID: "s1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	wantTrace := []State{StateStart, StateAIRequested, StateAIValidated, StateDone}
	if !slices.Equal(res.Trace, wantTrace) {
		t.Errorf("trace = %v, want %v", res.Trace, wantTrace)
	}
	if got := refs(res.Roadmap); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("path = %v, want [A B]", got)
	}
	if res.Roadmap.Strategy != roadmap.StrategyHybrid {
		t.Errorf("strategy = %q, want hybrid", res.Roadmap.Strategy)
	}
}

func TestGenerate_TimeoutFallsBack(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: aiPayload("A", "B"), Delay: 2 * time.Second})
	ai := requester(llm.WithTimeout(mock, 20*time.Millisecond))
	res, err := newService(t, newMemStore(), ai, abCatalog()).Generate(context.Background(), Request{StudentID: "s1"})
	if err != nil {
		t.Fatalf("timeout must not surface: %v", err)
	}

	wantTrace := []State{StateStart, StateAIRequested, StateAIFailed, StateRuleBased, StateDone}
	if !slices.Equal(res.Trace, wantTrace) {
		t.Errorf("trace = %v, want %v", res.Trace, wantTrace)
	}
	if res.Roadmap.Strategy != roadmap.StrategyRuleBased {
		t.Errorf("strategy = %q, want rule_based", res.Roadmap.Strategy)
	}
	if res.FallbackReason != "provider_unavailable" {
		t.Errorf("fallback reason = %q", res.FallbackReason)
	}
}

func TestGenerate_InvalidAIOutputFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"missing field", `{"learning_path": []}`, "schema_violation"},
		{"not json", `the model rambled`, "provider_error"},
		{"too many repairs", string(aiPayload("nope", "B", "A", "zzz")), "low_confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(tt.body)})
			res, err := newService(t, newMemStore(), requester(mock), abCatalog()).Generate(context.Background(), Request{StudentID: "s1"})
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if res.Roadmap.Strategy != roadmap.StrategyRuleBased {
				t.Errorf("strategy = %q, want rule_based", res.Roadmap.Strategy)
			}
			if res.FallbackReason != tt.reason {
				t.Errorf("reason = %q, want %q", res.FallbackReason, tt.reason)
			}
		})
	}
}

func TestGenerate_CycleIsFatal(t *testing.T) {
	src := catalog.StaticSource{
		{ID: "A", Difficulty: catalog.Beginner, DurationMinutes: 10, Prerequisites: []string{"B"}, Published: true},
		{ID: "B", Difficulty: catalog.Beginner, DurationMinutes: 10, Prerequisites: []string{"A"}, Published: true},
	}
	store := newMemStore()
	mock := llm.NewMockProvider(llm.MockResponse{Content: aiPayload("A")})
	res, err := newService(t, store, requester(mock), src).Generate(context.Background(), Request{StudentID: "s1"})
	if !errors.Is(err, catalog.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if res != nil {
		t.Error("no result should be returned")
	}
	if store.puts != 0 || mock.CallCount() != 0 {
		t.Errorf("puts = %d, provider calls = %d; want none", store.puts, mock.CallCount())
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	store := newMemStore()
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: aiPayload("A", "B")},
		llm.MockResponse{Content: aiPayload("A", "B")},
	)
	svc := newService(t, store, requester(mock), abCatalog())
	ctx := context.Background()

	first, err := svc.Generate(ctx, Request{StudentID: "s1"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Generate(ctx, Request{StudentID: "s1"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Reused || second.Roadmap.ID != first.Roadmap.ID {
		t.Errorf("expected stored roadmap %s to be reused, got %s (reused=%v)", first.Roadmap.ID, second.Roadmap.ID, second.Reused)
	}
	if mock.CallCount() != 1 || store.puts != 1 {
		t.Errorf("provider calls = %d, puts = %d; want 1 and 1", mock.CallCount(), store.puts)
	}

	forced, err := svc.Generate(ctx, Request{StudentID: "s1", Force: true})
	if err != nil {
		t.Fatalf("forced: %v", err)
	}
	if forced.Reused || forced.Roadmap.ID == first.Roadmap.ID {
		t.Error("force should regenerate with a new id")
	}
	if forced.Roadmap.Version != 2 {
		t.Errorf("version = %d, want 2", forced.Roadmap.Version)
	}
}

func TestGenerate_DifferentRequestRegenerates(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store, nil, abCatalog())
	ctx := context.Background()
	if _, err := svc.Generate(ctx, Request{StudentID: "s1"}); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Generate(ctx, Request{StudentID: "s1", TargetSkills: []string{"algebra"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reused {
		t.Error("different target skills must not reuse the stored roadmap")
	}
}

func TestGenerate_TimeConstraint(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store, nil, abCatalog())
	ctx := context.Background()
	req := Request{StudentID: "s1", TimeConstraint: "1 hour"}

	res, err := svc.Generate(ctx, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := refs(res.Roadmap); !slices.Equal(got, []string{"A"}) {
		t.Errorf("path = %v, want [A] within a 60 minute budget", got)
	}
	if got := res.Roadmap.Factors.TimeConstraint; got != "1 hour (60 minute budget)" {
		t.Errorf("factors time constraint = %q", got)
	}
	if res.Roadmap.Scope.TimeConstraint != "1 hour" {
		t.Errorf("scope = %+v", res.Roadmap.Scope)
	}

	again, err := svc.Generate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Reused {
		t.Error("same time constraint should reuse the stored roadmap")
	}
}

func TestGenerate_AIRecordsTimeConstraint(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: aiPayload("A", "B")})
	res, err := newService(t, newMemStore(), requester(mock), abCatalog()).Generate(context.Background(),
		Request{StudentID: "s1", TimeConstraint: "10 hours"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := res.Roadmap.Factors.TimeConstraint; got != "10 hours (600 minute budget)" {
		t.Errorf("factors time constraint = %q", got)
	}
}

func TestGenerate_InvalidTimeConstraint(t *testing.T) {
	store := newMemStore()
	_, err := newService(t, store, nil, abCatalog()).Generate(context.Background(), Request{StudentID: "s1", TimeConstraint: "whenever"})
	if !errors.Is(err, profile.ErrInvalidTimeConstraint) {
		t.Fatalf("err = %v, want ErrInvalidTimeConstraint", err)
	}
	if store.puts != 0 {
		t.Errorf("puts = %d, want nothing written", store.puts)
	}
}

func TestGenerate_DraftPreviewNotStored(t *testing.T) {
	src := append(abCatalog(), catalog.Course{ID: "D", Title: "Draft", Difficulty: catalog.Beginner, DurationMinutes: 30, Topics: []string{"algebra"}})
	store := newMemStore()
	svc := newService(t, store, nil, src)
	ctx := context.Background()

	stored, err := svc.Generate(ctx, Request{StudentID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	preview, err := svc.Generate(ctx, Request{StudentID: "s1", AllowDrafts: true})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.Preview || preview.Reused {
		t.Errorf("preview = %v, reused = %v", preview.Preview, preview.Reused)
	}
	if !slices.Contains(refs(preview.Roadmap), "D") {
		t.Errorf("preview path = %v, want the draft course", refs(preview.Roadmap))
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, preview must not be stored", store.puts)
	}
	current, err := svc.Current(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if current.ID != stored.Roadmap.ID || slices.Contains(refs(current), "D") {
		t.Errorf("stored roadmap changed to %s %v", current.ID, refs(current))
	}
}

func TestRequestFor_RebuildsStoredKey(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store, nil, abCatalog())
	res, err := svc.Generate(context.Background(), Request{StudentID: "s1", TargetSkills: []string{"algebra"}, TimeConstraint: "3 hours"})
	if err != nil {
		t.Fatal(err)
	}
	g, err := catalog.Load(abCatalog(), catalog.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := RequestKey(students()["s1"], g, RequestFor(res.Roadmap)); got != res.Roadmap.RequestKey {
		t.Errorf("rebuilt key %s, stored %s", got, res.Roadmap.RequestKey)
	}
}

func TestGenerate_IncompatibleFormatRegenerates(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store, nil, abCatalog())
	ctx := context.Background()
	first, err := svc.Generate(ctx, Request{StudentID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	store.m["s1"].FormatVersion = "v0.9.0"

	res, err := svc.Generate(ctx, Request{StudentID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reused || res.Roadmap.ID == first.Roadmap.ID {
		t.Error("older major format should be regenerated")
	}
}

func TestGenerate_CanceledBeforeWrite(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(Deps{
		Catalog: abCatalog(),
		Profiles: buildFunc(func(_ context.Context, id string) (profile.StudentContext, error) {
			cancel()
			return profile.StudentContext{StudentID: id}, nil
		}),
		Store: store,
	}, config.DefaultEngine())

	if _, err := svc.Generate(ctx, Request{StudentID: "s1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.puts != 0 {
		t.Errorf("nothing should be written, got %d puts", store.puts)
	}
}

func TestGenerate_StaleWriteRejected(t *testing.T) {
	store := newMemStore()
	svc := newService(t, store, nil, abCatalog())
	ctx := context.Background()
	if _, err := svc.Generate(ctx, Request{StudentID: "s1"}); err != nil {
		t.Fatal(err)
	}

	err := store.PutRoadmap(ctx, &roadmap.Roadmap{StudentID: "s1", Version: 5}, 0)
	if !errors.Is(err, roadmap.ErrConcurrentAdjustment) {
		t.Fatalf("expected ErrConcurrentAdjustment, got %v", err)
	}
}

func TestRemedial_AIThenRules(t *testing.T) {
	g, err := catalog.Load(abCatalog(), catalog.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	sc := profile.StudentContext{StudentID: "s1", Completed: []string{"A"}}

	good := json.RawMessage(`{"items":[{"reference":"review:algebra","kind":"remedial","estimated_minutes":25,"rationale":"revisit factoring"}]}`)
	mock := llm.NewMockProvider(llm.MockResponse{Content: good})
	svc := newService(t, newMemStore(), requester(mock), abCatalog())

	items, strategy, err := svc.Remedial(context.Background(), sc, g, []string{"algebra"}, nil, 3)
	if err != nil {
		t.Fatalf("remedial: %v", err)
	}
	if strategy != roadmap.StrategyAI || len(items) != 1 || items[0].EstimatedMinutes != 25 {
		t.Errorf("got %v %+v", strategy, items)
	}

	// Queue is empty now, so the mock reports the provider unavailable.
	items, strategy, err = svc.Remedial(context.Background(), sc, g, []string{"algebra"}, nil, 3)
	if err != nil {
		t.Fatalf("remedial fallback: %v", err)
	}
	if strategy != roadmap.StrategyRuleBased {
		t.Errorf("strategy = %q, want rule_based", strategy)
	}
	if len(items) != 1 || items[0].Ref != "B" {
		t.Errorf("items = %+v, want B as remedial", items)
	}
}

func TestRemedial_NothingAvailable(t *testing.T) {
	g, err := catalog.Load(abCatalog(), catalog.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	svc := newService(t, newMemStore(), nil, abCatalog())
	existing := []roadmap.Item{{Ref: "review:geometry"}}
	_, _, err = svc.Remedial(context.Background(), profile.StudentContext{StudentID: "s1"}, g, []string{"geometry"}, existing, 3)
	if !errors.Is(err, ErrNoRemedial) {
		t.Fatalf("expected ErrNoRemedial, got %v", err)
	}
}

func TestRequestKey_StableAcrossCalls(t *testing.T) {
	g, err := catalog.Load(abCatalog(), catalog.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	sc := students()["s1"]
	a := RequestKey(sc, g, Request{StudentID: "s1", TargetSkills: []string{"b", "a"}})
	sc.AsOf = sc.AsOf.Add(time.Hour)
	b := RequestKey(sc, g, Request{StudentID: "s1", TargetSkills: []string{"a", "b"}})
	if a != b {
		t.Error("key should ignore AsOf without a target date and target skill order")
	}
}

func TestCompatible(t *testing.T) {
	tests := map[string]bool{
		roadmap.FormatVersion: true,
		"v1.0.0":              true,
		"v1.9.3":              true,
		"v2.0.0":              false,
		"garbage":             false,
		"":                    false,
	}
	for v, want := range tests {
		if got := Compatible(v); got != want {
			t.Errorf("Compatible(%q) = %v, want %v", v, got, want)
		}
	}
}
