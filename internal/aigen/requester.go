// Package aigen asks a reasoning provider for roadmap and remedial
// payloads. It never falls back on its own; callers decide what to do
// with a failure.
package aigen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/llm"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/roadmap"
)

// Limiter bounds outbound calls. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Cache stores successful provider responses. cache.Memory and
// cache.Redis satisfy it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RawPayload is untrusted provider output awaiting normalization.
type RawPayload struct {
	Body   json.RawMessage
	Model  string
	Cached bool
}

// Config controls request construction.
type Config struct {
	MaxTokens   int
	Temperature float64
	// MaxCatalogCourses caps the catalog excerpt sent in one prompt.
	MaxCatalogCourses int
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:         4096,
		Temperature:       0.2,
		MaxCatalogCourses: 200,
	}
}

// Requester builds provider requests from a student and a catalog.
type Requester struct {
	provider llm.Provider
	config   Config
	limiter  Limiter
	cache    Cache
	log      *zap.Logger
}

type Option func(*Requester)

func WithLimiter(l Limiter) Option { return func(r *Requester) { r.limiter = l } }

func WithCache(c Cache) Option { return func(r *Requester) { r.cache = c } }

func WithLogger(l *zap.Logger) Option { return func(r *Requester) { r.log = l } }

// New creates a Requester. provider should already carry the retry and
// per-call timeout middleware (see llm.Wrap).
func New(provider llm.Provider, cfg Config, opts ...Option) *Requester {
	r := &Requester{provider: provider, config: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Request asks for a full roadmap.
func (r *Requester) Request(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, opts Options) (*RawPayload, error) {
	ctx = llm.WithStudent(llm.WithPurpose(ctx, "roadmap"), sc.StudentID)
	req := llm.Request{
		System:      roadmapSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildRoadmapMessage(sc, g, opts, r.config.MaxCatalogCourses)}},
		Schema:      RoadmapSchema,
		MaxTokens:   r.config.MaxTokens,
		Temperature: r.config.Temperature,
	}
	return r.do(ctx, req)
}

// RequestRemedial asks for at most maxItems remedial steps scoped to gaps.
func (r *Requester) RequestRemedial(ctx context.Context, sc profile.StudentContext, g *catalog.Graph, gaps []string, maxItems int) (*RawPayload, error) {
	ctx = llm.WithStudent(llm.WithPurpose(ctx, "remedial"), sc.StudentID)
	req := llm.Request{
		System:      remedialSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildRemedialMessage(sc, g, gaps, maxItems, r.config.MaxCatalogCourses)}},
		Schema:      RemedialSchema,
		MaxTokens:   r.config.MaxTokens / 2,
		Temperature: r.config.Temperature,
	}
	return r.do(ctx, req)
}

func (r *Requester) do(ctx context.Context, req llm.Request) (*RawPayload, error) {
	key := r.cacheKey(req)
	if r.cache != nil {
		body, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Warn("provider cache read failed", zap.Error(err))
		} else if ok {
			return &RawPayload{Body: body, Model: r.provider.ModelID(), Cached: true}, nil
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", roadmap.ErrProviderUnavailable, err)
		}
	}

	resp, err := r.provider.Generate(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, resp.Content); err != nil {
			r.log.Warn("provider cache write failed", zap.Error(err))
		}
	}
	return &RawPayload{Body: resp.Content, Model: resp.Model}, nil
}

func (r *Requester) cacheKey(req llm.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", r.provider.ModelID(), req.Schema.Name)
	h.Write([]byte(req.System))
	for _, m := range req.Messages {
		fmt.Fprintf(h, "\x00%s\x00%s", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// mapError folds provider errors onto the two roadmap sentinels: anything
// transient is unavailable, anything the provider actually said is an
// error.
func mapError(err error) error {
	var (
		provErr *llm.ErrProviderError
		invalid *llm.ErrInvalidResponse
		maxTok  *llm.ErrMaxTokensExceeded
	)
	switch {
	case errors.As(err, &provErr), errors.As(err, &invalid), errors.As(err, &maxTok):
		return fmt.Errorf("%w: %w", roadmap.ErrProviderError, err)
	default:
		return fmt.Errorf("%w: %w", roadmap.ErrProviderUnavailable, err)
	}
}

func sortedKeys(m map[string]float64) []string {
	return slices.Sorted(maps.Keys(m))
}
