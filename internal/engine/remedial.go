package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/normalize"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
	"github.com/abhisek/pathfinder/internal/rulegen"
)

// ErrNoRemedial means neither strategy produced a usable remedial item.
var ErrNoRemedial = errors.New("no remedial items available")

// Remedial returns at most maxItems remedial items for the gap topics,
// using the same AI-first, rule-fallback policy as Generate but scoped to
// the gaps. Items already in existing are never returned.
func (s *Service) Remedial(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, gaps []string, existing []roadmap.Item, maxItems int) ([]roadmap.Item, roadmap.Strategy, error) {
	ctx, span := tracer.Start(ctx, "engine.Remedial")
	span.SetAttributes(
		attribute.String("student.id", sc.StudentID),
		attribute.StringSlice("gaps", gaps),
	)
	defer span.End()

	if maxItems <= 0 || len(gaps) == 0 {
		return nil, "", ErrNoRemedial
	}

	if s.aiEnabled() {
		items, err := s.remedialAI(ctx, sc, g, gaps, existing, maxItems)
		if err == nil {
			span.SetAttributes(attribute.String("remedial.strategy", string(roadmap.StrategyAI)))
			return items, roadmap.StrategyAI, nil
		}
		reason := failureReason(err)
		s.metrics.AIFailure(reason)
		s.log.Warn("ai remedial generation failed, falling back to rules",
			zap.String("student_id", sc.StudentID),
			zap.String("reason", reason),
			zap.Error(err))
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	items := rulegen.Remedial(sc, g, s.cfg, gaps, maxItems, existing)
	if len(items) == 0 {
		return nil, "", ErrNoRemedial
	}
	span.SetAttributes(attribute.String("remedial.strategy", string(roadmap.StrategyRuleBased)))
	return items, roadmap.StrategyRuleBased, nil
}

func (s *Service) remedialAI(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, gaps []string, existing []roadmap.Item, maxItems int) ([]roadmap.Item, error) {
	aiCtx, cancel := context.WithTimeout(ctx, s.aiBudget())
	defer cancel()

	raw, err := s.deps.AI.RequestRemedial(aiCtx, sc, g, gaps, maxItems)
	if err != nil {
		return nil, err
	}
	items, repairs, err := s.validator.ValidateRemedial(raw, g, sc, existing, maxItems)
	if err != nil {
		var rejected *normalize.RejectedPayload
		if errors.As(err, &rejected) {
			s.countRepairs(rejected.Repairs)
		}
		return nil, err
	}
	s.countRepairs(repairs)
	return items, nil
}
