package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abhisek/pathfinder/internal/adjust"
	"github.com/abhisek/pathfinder/internal/aigen"
	"github.com/abhisek/pathfinder/internal/cache"
	"github.com/abhisek/pathfinder/internal/config"
	"github.com/abhisek/pathfinder/internal/engine"
	"github.com/abhisek/pathfinder/internal/llm"
	"github.com/abhisek/pathfinder/internal/logging"
	"github.com/abhisek/pathfinder/internal/metrics"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/store"
)

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	store    *store.Store
	metrics  *metrics.Metrics
	profiles *profile.Aggregator
	engine   *engine.Service
	adjust   *adjust.Engine

	closers []func() error
}

// openStore loads config and opens the database without building the
// engines.
func openStore(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbPath, err := resolveDBPath(cmd, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Debug("database opened", zap.String("path", dbPath))

	a := &app{cfg: cfg, log: log, store: st}
	a.closers = append(a.closers, st.Close, func() error {
		_ = log.Sync()
		return nil
	})
	return a, nil
}

// setup opens the store and wires the generation and adjustment
// engines. The AI strategy is enabled only when a provider key is
// configured.
func setup(cmd *cobra.Command) (*app, error) {
	a, err := openStore(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a.metrics = metrics.New()
	a.profiles = &profile.Aggregator{
		Students:    a.store.Students(),
		Assessments: a.store.Assessments(),
		Config:      a.cfg.Engine,
	}

	deps := engine.Deps{
		Catalog:  a.store.Catalog(),
		Profiles: a.profiles,
		Store:    a.store.Roadmaps(),
	}
	requester, err := a.requester(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if requester != nil {
		deps.AI = requester
	}

	a.engine = engine.NewService(deps, a.cfg.Engine,
		engine.WithLogger(a.log),
		engine.WithMetrics(a.metrics))
	a.adjust = adjust.New(adjust.Deps{
		Catalog:  a.store.Catalog(),
		Profiles: a.profiles,
		Roadmaps: a.store.Roadmaps(),
		Patterns: a.store.Patterns(),
		Remedial: a.engine,
	}, a.cfg.Engine,
		adjust.WithLogger(a.log),
		adjust.WithMetrics(a.metrics))
	return a, nil
}

func (a *app) requester(ctx context.Context) (*aigen.Requester, error) {
	if a.cfg.Engine.DisableAI {
		a.log.Info("AI generation disabled by configuration")
		return nil, nil
	}
	if err := a.cfg.LLM.Validate(); err != nil {
		a.log.Info("LLM provider not configured, using rule-based generation", zap.Error(err))
		return nil, nil
	}

	provider, err := llm.NewProvider(ctx, a.cfg.LLM, a.store.LLMEvents(), a.log)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(ctx, a.cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init response cache: %w", err)
	}
	if closer, ok := c.(io.Closer); ok {
		a.closers = append(a.closers, closer.Close)
	}

	opts := []aigen.Option{aigen.WithLogger(a.log), aigen.WithCache(c)}
	if rl := a.cfg.RateLimit; rl.RequestsPerSecond > 0 {
		opts = append(opts, aigen.WithLimiter(rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), max(rl.Burst, 1))))
	}
	a.log.Info("AI generation enabled",
		zap.String("provider", a.cfg.LLM.Provider),
		zap.String("model", provider.ModelID()),
		zap.String("cache", a.cfg.Cache.Backend))
	return aigen.New(provider, aigen.DefaultConfig(), opts...), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
