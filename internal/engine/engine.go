// Package engine orchestrates roadmap generation: AI first, validated and
// repaired, with the rule-based generator as the fallback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/aigen"
	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/metrics"
	"github.com/abhisek/pathfinder/internal/normalize"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
	"github.com/abhisek/pathfinder/internal/rulegen"
)

var tracer = otel.Tracer("github.com/abhisek/pathfinder/internal/engine")

// State is one step of the generation state machine.
type State string

const (
	StateStart       State = "START"
	StateReused      State = "REUSED"
	StateAIRequested State = "AI_REQUESTED"
	StateAIValidated State = "AI_VALIDATED"
	StateAIFailed    State = "AI_FAILED"
	StateRuleBased   State = "RULE_BASED"
	StateDone        State = "DONE"
)

// RoadmapStore persists one current roadmap per student.
type RoadmapStore interface {
	// GetRoadmap returns roadmap.ErrNotFound when nothing is stored.
	GetRoadmap(ctx context.Context, studentID string) (*roadmap.Roadmap, error)
	// PutRoadmap replaces the stored roadmap. It fails with
	// roadmap.ErrConcurrentAdjustment when the stored version is not
	// expectedVersion (0 means nothing stored yet).
	PutRoadmap(ctx context.Context, r *roadmap.Roadmap, expectedVersion int) error
}

// ContextBuilder assembles a StudentContext. *profile.Aggregator
// satisfies it.
type ContextBuilder interface {
	Build(ctx context.Context, studentID string) (profile.StudentContext, error)
}

// Requester calls the reasoning provider. *aigen.Requester satisfies it.
type Requester interface {
	Request(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, opts aigen.Options) (*aigen.RawPayload, error)
	RequestRemedial(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, gaps []string, maxItems int) (*aigen.RawPayload, error)
}

// Deps are the collaborators of a Service. AI may be nil, in which case
// only the rule-based generator runs.
type Deps struct {
	Catalog  catalog.Source
	Profiles ContextBuilder
	Store    RoadmapStore
	AI       Requester
}

// Request is one generation request.
type Request struct {
	StudentID      string
	TargetSkills   []string
	TimeConstraint string
	// Force regenerates even when an equivalent roadmap is stored.
	Force bool
	// AllowDrafts includes unpublished courses (instructor preview). The
	// result is returned but not stored.
	AllowDrafts bool
}

// Result is the outcome of Generate.
type Result struct {
	Roadmap *roadmap.Roadmap
	Trace   []State
	// Reused is set when the stored roadmap was returned unchanged.
	Reused bool
	// Preview is set for AllowDrafts requests, which are never stored.
	Preview bool
	// FallbackReason says why the AI path failed, if it did.
	FallbackReason string
	Warnings       []string
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
}

// Service generates roadmaps. It keeps no per-request state and is safe
// for concurrent use.
type Service struct {
	deps      Deps
	cfg       config.Engine
	validator *normalize.Validator
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs overrides roadmap id generation (uuid v4 by default).
func WithIDs(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(deps Deps, cfg config.Engine, opts ...Option) *Service {
	s := &Service{
		deps:  deps,
		cfg:   cfg,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.validator = normalize.New(cfg, s.log)
	return s
}

func (s *Service) aiEnabled() bool {
	return s.deps.AI != nil && !s.cfg.DisableAI
}

// Generate produces and stores a roadmap for the student. Every request
// ends in a valid stored roadmap unless the catalog has a prerequisite
// cycle (catalog.ErrCycleDetected), the time constraint cannot be read
// (profile.ErrInvalidTimeConstraint), a collaborator fails, or ctx ends
// before the write. Nothing is written on error or for an AllowDrafts
// preview.
func (s *Service) Generate(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "engine.Generate", trace.WithAttributes(
		attribute.String("student.id", req.StudentID),
		attribute.Bool("request.force", req.Force),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("roadmap.strategy", string(res.Roadmap.Strategy)))
		}
		span.End()
	}()

	start := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	res = &Result{}
	res.enter(StateStart)

	g, err := catalog.LoadFrom(ctx, s.deps.Catalog, catalog.LoadOptions{AllowDrafts: req.AllowDrafts})
	if err != nil {
		return nil, fmt.Errorf("load course graph: %w", err)
	}
	sc, err := s.deps.Profiles.Build(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("build student context: %w", err)
	}
	if _, _, err := sc.ConstraintBudget(req.TimeConstraint); err != nil {
		return nil, err
	}

	existing, err := s.deps.Store.GetRoadmap(ctx, req.StudentID)
	if err != nil && !errors.Is(err, roadmap.ErrNotFound) {
		return nil, fmt.Errorf("load stored roadmap: %w", err)
	}

	key := RequestKey(sc, g, req)
	if !req.Force && !req.AllowDrafts && existing != nil && existing.RequestKey == key && Compatible(existing.FormatVersion) {
		res.enter(StateReused)
		res.enter(StateDone)
		res.Roadmap = existing
		res.Reused = true
		s.log.Debug("reusing stored roadmap", zap.String("student_id", req.StudentID), zap.String("roadmap_id", existing.ID))
		return res, nil
	}

	var r *roadmap.Roadmap
	if s.aiEnabled() {
		res.enter(StateAIRequested)
		r, err = s.generateAI(ctx, sc, g, req, res)
		if err != nil {
			res.enter(StateAIFailed)
			res.FallbackReason = failureReason(err)
			s.metrics.AIFailure(res.FallbackReason)
			s.log.Warn("ai generation failed, falling back to rules",
				zap.String("student_id", req.StudentID),
				zap.String("reason", res.FallbackReason),
				zap.Error(err))
		} else {
			res.enter(StateAIValidated)
		}
	}
	if r == nil {
		res.enter(StateRuleBased)
		r = rulegen.Generate(sc, g, s.cfg, rulegen.Options{
			TargetSkills:   req.TargetSkills,
			TimeConstraint: req.TimeConstraint,
		})
	}

	now := s.now().UTC()
	r.ID = s.newID()
	r.StudentID = req.StudentID
	r.RequestKey = key
	r.Scope = roadmap.Scope{
		TargetSkills:   slices.Sorted(slices.Values(req.TargetSkills)),
		TimeConstraint: req.TimeConstraint,
	}
	r.FormatVersion = roadmap.FormatVersion
	r.CreatedAt = now
	r.LastAdjustedAt = now
	r.Version = 1
	expected := 0
	if existing != nil {
		expected = existing.Version
		r.Version = existing.Version + 1
	}

	if err := roadmap.Check(r, g, sc.CompletedSet()); err != nil {
		return nil, fmt.Errorf("generated roadmap for %s: %w", req.StudentID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation canceled before write: %w", err)
	}
	if req.AllowDrafts {
		// Previews may reference draft courses; never store them.
		res.enter(StateDone)
		res.Roadmap = r
		res.Preview = true
		s.log.Info("roadmap preview generated",
			zap.String("student_id", req.StudentID),
			zap.String("strategy", string(r.Strategy)),
			zap.Int("items", len(r.Items)))
		return res, nil
	}
	if err := s.deps.Store.PutRoadmap(ctx, r, expected); err != nil {
		return nil, fmt.Errorf("store roadmap: %w", err)
	}

	res.enter(StateDone)
	res.Roadmap = r
	s.metrics.ObserveGeneration(string(r.Strategy), s.now().Sub(start))
	s.log.Info("roadmap generated",
		zap.String("student_id", req.StudentID),
		zap.String("roadmap_id", r.ID),
		zap.String("strategy", string(r.Strategy)),
		zap.Int("items", len(r.Items)),
		zap.Int("repairs", len(r.Repairs)))
	return res, nil
}

// aiBudget leaves a quarter of the request timeout for the fallback and
// the write.
func (s *Service) aiBudget() time.Duration {
	return s.cfg.RequestTimeout * 3 / 4
}

func (s *Service) generateAI(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, req Request, res *Result) (*roadmap.Roadmap, error) {
	aiCtx, cancel := context.WithTimeout(ctx, s.aiBudget())
	defer cancel()

	raw, err := s.deps.AI.Request(aiCtx, sc, g, aigen.Options{
		TargetSkills:   req.TargetSkills,
		TimeConstraint: req.TimeConstraint,
	})
	if err != nil {
		if aiCtx.Err() != nil && !errors.Is(err, roadmap.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %w", roadmap.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	v, err := s.validator.Validate(raw, g, sc)
	if err != nil {
		var rejected *normalize.RejectedPayload
		if errors.As(err, &rejected) {
			s.countRepairs(rejected.Repairs)
		}
		return nil, err
	}
	s.countRepairs(v.Repairs)
	res.Warnings = append(res.Warnings, v.Warnings...)
	if len(req.TargetSkills) > 0 {
		v.Roadmap.Factors.TargetSkills = slices.Sorted(slices.Values(req.TargetSkills))
	}
	if req.TimeConstraint != "" {
		v.Roadmap.Factors.TimeConstraint = sc.ConstraintSummary(req.TimeConstraint)
	}
	return v.Roadmap, nil
}

func (s *Service) countRepairs(repairs []roadmap.Repair) {
	for _, r := range repairs {
		s.metrics.Repair(r.Kind)
	}
}

// failureReason is the metric label for an AI path failure.
func failureReason(err error) string {
	switch {
	case errors.Is(err, roadmap.ErrLowConfidenceOutput):
		return "low_confidence"
	case errors.Is(err, roadmap.ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, roadmap.ErrInvalidRoadmap):
		return "invalid_output"
	case errors.Is(err, roadmap.ErrProviderError):
		return "provider_error"
	case errors.Is(err, roadmap.ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

// Current returns the stored roadmap for the student.
func (s *Service) Current(ctx context.Context, studentID string) (*roadmap.Roadmap, error) {
	return s.deps.Store.GetRoadmap(ctx, studentID)
}
