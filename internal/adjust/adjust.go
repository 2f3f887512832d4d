// Package adjust reacts to assessment outcomes: it detects learning
// patterns, inserts remedial steps and records alternative paths, without
// ever leaving the stored roadmap invalid.
package adjust

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/engine"
	"github.com/abhisek/pathfinder/internal/metrics"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

var tracer = otel.Tracer("github.com/abhisek/pathfinder/internal/adjust")

// RoadmapStore is the roadmap read/write contract. engine.RoadmapStore
// has the same shape.
type RoadmapStore interface {
	GetRoadmap(ctx context.Context, studentID string) (*roadmap.Roadmap, error)
	PutRoadmap(ctx context.Context, r *roadmap.Roadmap, expectedVersion int) error
}

// PatternStore keeps the append-only pattern log.
type PatternStore interface {
	ActivePatterns(ctx context.Context, studentID string) ([]roadmap.Pattern, error)
	// ApplyPatterns marks the superseded ids and appends the new records
	// in one step.
	ApplyPatterns(ctx context.Context, studentID string, supersede []string, insert []roadmap.Pattern, at time.Time) error
}

// RemedialSource produces remedial items scoped to gap topics.
// *engine.Service satisfies it.
type RemedialSource interface {
	Remedial(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, gaps []string, existing []roadmap.Item, maxItems int) ([]roadmap.Item, roadmap.Strategy, error)
}

// ContextBuilder assembles a StudentContext.
type ContextBuilder interface {
	Build(ctx context.Context, studentID string) (profile.StudentContext, error)
}

type Deps struct {
	Catalog  catalog.Source
	Profiles ContextBuilder
	Roadmaps RoadmapStore
	Patterns PatternStore
	Remedial RemedialSource
}

// Outcome describes what an adjustment did.
type Outcome struct {
	// Roadmap is the stored roadmap after the run; unchanged when no
	// mutation happened.
	Roadmap *roadmap.Roadmap
	// Patterns are the patterns detected in this run.
	Patterns         []roadmap.Pattern
	Gaps             []string
	Inserted         []roadmap.Item
	RemedialStrategy roadmap.Strategy
	AlternativePath  string
	Mutated          bool
	Degraded         bool
}

// Engine runs adjustments. Use one Engine per process so its StudentLocks
// see every caller.
type Engine struct {
	deps    Deps
	cfg     config.Engine
	locks   *StudentLocks
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDs(f func() string) Option { return func(e *Engine) { e.newID = f } }

func New(deps Deps, cfg config.Engine, opts ...Option) *Engine {
	e := &Engine{
		deps:  deps,
		cfg:   cfg,
		locks: NewStudentLocks(),
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Adjust processes one assessment for a student. A passed assessment only
// refreshes patterns. A failed one also inserts up to
// MaxRemedialPerAdjustment remedial items and, after repeated failures,
// an alternative path.
//
// Without a stored roadmap only patterns are recorded and Outcome.Roadmap
// is nil.
//
// Errors: roadmap.ErrConcurrentAdjustment when another adjustment for the
// student is running or won the write; roadmap.ErrAdjustmentDegraded when
// patterns were recorded but the roadmap could not be extended (the
// returned Outcome is still populated).
func (e *Engine) Adjust(ctx context.Context, studentID string, trigger profile.AssessmentRecord) (out *Outcome, err error) {
	ctx, span := tracer.Start(ctx, "adjust.Adjust", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("assessment.id", trigger.ID),
		attribute.Bool("assessment.passed", trigger.Passed),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	release, ok := e.locks.TryLock(studentID)
	if !ok {
		e.metrics.Adjustment("conflict")
		return nil, fmt.Errorf("%w: student %s", roadmap.ErrConcurrentAdjustment, studentID)
	}
	defer release()

	g, err := catalog.LoadFrom(ctx, e.deps.Catalog, catalog.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("load course graph: %w", err)
	}
	sc, err := e.deps.Profiles.Build(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("build student context: %w", err)
	}
	sc.History = withTrigger(sc.History, trigger)

	now := e.now().UTC()
	out = &Outcome{}
	if out.Patterns, err = e.refreshPatterns(ctx, studentID, sc.History, now); err != nil {
		return nil, err
	}

	current, err := e.deps.Roadmaps.GetRoadmap(ctx, studentID)
	if errors.Is(err, roadmap.ErrNotFound) {
		e.metrics.Adjustment("no_roadmap")
		e.log.Debug("no roadmap to adjust", zap.String("student_id", studentID))
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load roadmap for %s: %w", studentID, err)
	}
	out.Roadmap = current
	if trigger.Passed {
		e.metrics.Adjustment("patterns_only")
		return out, nil
	}

	out.Gaps = ExtractGaps(trigger, sc.History, e.cfg.HistoryWindow)
	span.SetAttributes(attribute.StringSlice("gaps", out.Gaps))

	items, strategy, err := e.deps.Remedial.Remedial(ctx, sc, g, out.Gaps, current.Items, e.cfg.MaxRemedialPerAdjustment)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return e.degrade(out, studentID, fmt.Errorf("remedial generation: %w", err))
	}
	if len(items) > e.cfg.MaxRemedialPerAdjustment {
		items = items[:e.cfg.MaxRemedialPerAdjustment]
	}

	next := current.Clone()
	completed := sc.CompletedSet()
	gapSet := make(map[string]bool, len(out.Gaps))
	for _, t := range out.Gaps {
		gapSet[t] = true
	}
	at := InsertionPoint(next.Items, g, gapSet, completed)
	next.Items = insertAt(next.Items, at, items)
	next.Renumber()
	next.Progression = widen(next.Progression, items)
	if strategy != "" && strategy != next.Strategy {
		next.Strategy = roadmap.StrategyHybrid
	}

	if ConsecutiveFailures(trigger, sc.History) >= e.cfg.RepeatedFailureCount {
		alt := AlternativePath(next.Items, g, sc, out.Gaps)
		if !slices.Contains(next.AlternativePaths, alt) {
			next.AlternativePaths = append(next.AlternativePaths, alt)
			out.AlternativePath = alt
		}
	}

	next.Reasoning = appendNote(next.Reasoning, now, trigger, items, out.Gaps)
	next.Version = current.Version + 1
	next.LastAdjustedAt = now
	// Key against the post-adjustment context.
	next.RequestKey = engine.RequestKey(sc, g, engine.RequestFor(next))

	if err := roadmap.Check(next, g, completed); err != nil {
		return e.degrade(out, studentID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("adjustment canceled before write: %w", err)
	}
	if err := e.deps.Roadmaps.PutRoadmap(ctx, next, current.Version); err != nil {
		if errors.Is(err, roadmap.ErrConcurrentAdjustment) {
			e.metrics.Adjustment("conflict")
		}
		return nil, fmt.Errorf("store adjusted roadmap: %w", err)
	}

	out.Roadmap = next
	out.Inserted = items
	out.RemedialStrategy = strategy
	out.Mutated = true
	e.metrics.Adjustment("applied")
	e.log.Info("roadmap adjusted",
		zap.String("student_id", studentID),
		zap.String("assessment_id", trigger.ID),
		zap.Strings("gaps", out.Gaps),
		zap.Int("inserted", len(items)),
		zap.String("remedial_strategy", string(strategy)),
		zap.Int("version", next.Version))
	return out, nil
}

// Refresh re-runs pattern detection over the stored history without
// touching the roadmap.
func (e *Engine) Refresh(ctx context.Context, studentID string) ([]roadmap.Pattern, error) {
	ctx, span := tracer.Start(ctx, "adjust.Refresh", trace.WithAttributes(attribute.String("student.id", studentID)))
	defer span.End()

	release, ok := e.locks.TryLock(studentID)
	if !ok {
		return nil, fmt.Errorf("%w: student %s", roadmap.ErrConcurrentAdjustment, studentID)
	}
	defer release()

	sc, err := e.deps.Profiles.Build(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("build student context: %w", err)
	}
	return e.refreshPatterns(ctx, studentID, sc.History, e.now().UTC())
}

func (e *Engine) refreshPatterns(ctx context.Context, studentID string, history []profile.AssessmentRecord, now time.Time) ([]roadmap.Pattern, error) {
	detected := DetectPatterns(studentID, history, e.cfg, now)

	active, err := e.deps.Patterns.ActivePatterns(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load patterns for %s: %w", studentID, err)
	}
	plan := PlanPatterns(active, detected)
	if plan.Empty() {
		return detected, nil
	}
	for i := range plan.Insert {
		plan.Insert[i].ID = e.newID()
	}
	if err := e.deps.Patterns.ApplyPatterns(ctx, studentID, plan.Supersede, plan.Insert, now); err != nil {
		return nil, fmt.Errorf("store patterns for %s: %w", studentID, err)
	}
	e.log.Debug("patterns updated",
		zap.String("student_id", studentID),
		zap.Int("superseded", len(plan.Supersede)),
		zap.Int("inserted", len(plan.Insert)))
	return detected, nil
}

func (e *Engine) degrade(out *Outcome, studentID string, cause error) (*Outcome, error) {
	out.Degraded = true
	e.metrics.Adjustment("degraded")
	e.log.Warn("adjustment degraded to pattern detection",
		zap.String("student_id", studentID),
		zap.Error(cause))
	return out, fmt.Errorf("%w: %w", roadmap.ErrAdjustmentDegraded, cause)
}

// withTrigger makes sure the triggering record is part of the history the
// adjustment reasons about.
func withTrigger(history []profile.AssessmentRecord, trigger profile.AssessmentRecord) []profile.AssessmentRecord {
	for _, a := range history {
		if a.ID == trigger.ID {
			return history
		}
	}
	out := append(slices.Clone(history), trigger)
	profile.SortHistory(out)
	return out
}

// widen extends the progression to cover the inserted items.
func widen(p roadmap.Progression, items []roadmap.Item) roadmap.Progression {
	for _, it := range items {
		if !it.Difficulty.Valid() {
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

func appendNote(reasoning string, at time.Time, trigger profile.AssessmentRecord, items []roadmap.Item, gaps []string) string {
	refs := make([]string, len(items))
	for i, it := range items {
		refs[i] = it.Ref
	}
	note := fmt.Sprintf("[%s] Assessment %s scored %g with gaps in %s; added %s.",
		at.Format("2006-01-02"), trigger.ID, trigger.Score, strings.Join(gaps, ", "), strings.Join(refs, ", "))
	if reasoning == "" {
		return note
	}
	return reasoning + "\n\n" + note
}
