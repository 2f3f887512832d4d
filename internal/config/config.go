package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/pathfinder/internal/llm"
)

// Engine holds every tunable of the generation and adjustment engine.
// It is passed by value and never read from globals mid-computation.
type Engine struct {
	// GapThreshold marks a topic as a knowledge gap when proficiency is below it.
	GapThreshold float64 `mapstructure:"gap_threshold"`

	SlowPaceMultiplier float64 `mapstructure:"slow_pace_multiplier"`
	FastPaceMultiplier float64 `mapstructure:"fast_pace_multiplier"`

	// RepairRatioLimit is the fraction of touched items above which AI
	// output is rejected as low confidence.
	RepairRatioLimit float64 `mapstructure:"repair_ratio_limit"`

	// MinRepairsForLowConfidence is the smallest number of touched items
	// that can trigger the ratio check. Keeps a single fix on a tiny
	// roadmap from discarding it.
	MinRepairsForLowConfidence int `mapstructure:"min_repairs_for_low_confidence"`

	DefaultRemedialMinutes int `mapstructure:"default_remedial_minutes"`
	MaxItemMinutes         int `mapstructure:"max_item_minutes"`

	// HistoryWindow is the number of recent records per topic cluster used
	// for gap extraction and rolling averages.
	HistoryWindow int `mapstructure:"history_window"`

	StruggleThreshold    float64 `mapstructure:"struggle_threshold"`
	StrengthThreshold    float64 `mapstructure:"strength_threshold"`
	MinDataPoints        int     `mapstructure:"min_data_points"`
	FullConfidencePoints int     `mapstructure:"full_confidence_points"`

	MaxRemedialPerAdjustment int `mapstructure:"max_remedial_per_adjustment"`
	RepeatedFailureCount     int `mapstructure:"repeated_failure_count"`

	// RequestTimeout bounds one generation request end to end, independent
	// of the provider's per-call timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// DisableAI forces the rule-based strategy.
	DisableAI bool `mapstructure:"disable_ai"`
}

// DefaultEngine returns the engine defaults.
func DefaultEngine() Engine {
	return Engine{
		GapThreshold:               0.5,
		SlowPaceMultiplier:         1.3,
		FastPaceMultiplier:         0.8,
		RepairRatioLimit:           0.3,
		MinRepairsForLowConfidence: 2,
		DefaultRemedialMinutes:     30,
		MaxItemMinutes:             2400,
		HistoryWindow:              5,
		StruggleThreshold:          65,
		StrengthThreshold:          85,
		MinDataPoints:              2,
		FullConfidencePoints:       5,
		MaxRemedialPerAdjustment:   3,
		RepeatedFailureCount:       2,
		RequestTimeout:             20 * time.Second,
	}
}

// Validate checks the engine settings for values that would break
// invariants.
func (e Engine) Validate() error {
	var errs []error
	if e.GapThreshold < 0 || e.GapThreshold > 1 {
		errs = append(errs, fmt.Errorf("gap_threshold must be in [0,1], got %v", e.GapThreshold))
	}
	if e.SlowPaceMultiplier <= 0 || e.FastPaceMultiplier <= 0 {
		errs = append(errs, errors.New("pace multipliers must be > 0"))
	}
	if e.RepairRatioLimit <= 0 || e.RepairRatioLimit > 1 {
		errs = append(errs, fmt.Errorf("repair_ratio_limit must be in (0,1], got %v", e.RepairRatioLimit))
	}
	if e.DefaultRemedialMinutes <= 0 {
		errs = append(errs, errors.New("default_remedial_minutes must be > 0"))
	}
	if e.MaxItemMinutes < e.DefaultRemedialMinutes {
		errs = append(errs, errors.New("max_item_minutes must be >= default_remedial_minutes"))
	}
	if e.HistoryWindow <= 0 || e.FullConfidencePoints <= 0 {
		errs = append(errs, errors.New("history_window and full_confidence_points must be > 0"))
	}
	if e.StruggleThreshold >= e.StrengthThreshold {
		errs = append(errs, errors.New("struggle_threshold must be below strength_threshold"))
	}
	if e.MaxRemedialPerAdjustment <= 0 {
		errs = append(errs, errors.New("max_remedial_per_adjustment must be > 0"))
	}
	if e.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be > 0"))
	}
	return errors.Join(errs...)
}

// PaceMultiplier returns the duration multiplier for a pace value.
func (e Engine) PaceMultiplier(pace string) float64 {
	switch pace {
	case "slow":
		return e.SlowPaceMultiplier
	case "fast":
		return e.FastPaceMultiplier
	default:
		return 1.0
	}
}

// Store configures the SQLite database.
type Store struct {
	Path string `mapstructure:"path"`
}

// Log configures the zap logger.
type Log struct {
	Level string `mapstructure:"level"`
	// File enables a rotated JSON log file in addition to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Cache configures the provider response cache.
type Cache struct {
	// Backend is "memory", "redis" or "none".
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// RateLimit bounds outbound provider calls for the whole process.
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"`
}

// Config is the full process configuration.
type Config struct {
	Engine    Engine     `mapstructure:"engine"`
	LLM       llm.Config `mapstructure:"-"`
	Store     Store      `mapstructure:"store"`
	Log       Log        `mapstructure:"log"`
	Cache     Cache      `mapstructure:"cache"`
	RateLimit RateLimit  `mapstructure:"rate_limit"`
	HTTP      HTTP       `mapstructure:"http"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	lc := llm.DefaultConfig()
	lc.Retry.MaxAttempts = 2
	lc.Timeout = 15 * time.Second
	return Config{
		Engine: DefaultEngine(),
		LLM:    lc,
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Cache: Cache{
			Backend: "memory",
			TTL:     time.Hour,
		},
		RateLimit: RateLimit{
			RequestsPerSecond: 2,
			Burst:             4,
		},
		HTTP: HTTP{
			Addr: ":8080",
			Mode: "release",
		},
	}
}

// Load reads configuration from an optional YAML file and PATHFINDER_*
// environment variables. An empty path searches the working directory
// and $HOME/.config/pathfinder for config.yaml; a missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pathfinder")
	}

	v.SetEnvPrefix("PATHFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM = llmFromViper(v, cfg.LLM)

	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	e := cfg.Engine
	v.SetDefault("engine.gap_threshold", e.GapThreshold)
	v.SetDefault("engine.slow_pace_multiplier", e.SlowPaceMultiplier)
	v.SetDefault("engine.fast_pace_multiplier", e.FastPaceMultiplier)
	v.SetDefault("engine.repair_ratio_limit", e.RepairRatioLimit)
	v.SetDefault("engine.min_repairs_for_low_confidence", e.MinRepairsForLowConfidence)
	v.SetDefault("engine.default_remedial_minutes", e.DefaultRemedialMinutes)
	v.SetDefault("engine.max_item_minutes", e.MaxItemMinutes)
	v.SetDefault("engine.history_window", e.HistoryWindow)
	v.SetDefault("engine.struggle_threshold", e.StruggleThreshold)
	v.SetDefault("engine.strength_threshold", e.StrengthThreshold)
	v.SetDefault("engine.min_data_points", e.MinDataPoints)
	v.SetDefault("engine.full_confidence_points", e.FullConfidencePoints)
	v.SetDefault("engine.max_remedial_per_adjustment", e.MaxRemedialPerAdjustment)
	v.SetDefault("engine.repeated_failure_count", e.RepeatedFailureCount)
	v.SetDefault("engine.request_timeout", e.RequestTimeout)
	v.SetDefault("engine.disable_ai", e.DisableAI)

	v.SetDefault("store.path", cfg.Store.Path)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_db", cfg.Cache.RedisDB)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)

	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)

	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.mode", cfg.HTTP.Mode)

	l := cfg.LLM
	v.SetDefault("llm.provider", l.Provider)
	v.SetDefault("llm.timeout", l.Timeout)
	v.SetDefault("llm.retry.max_attempts", l.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", l.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", l.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", l.Retry.Multiplier)
	v.SetDefault("llm.anthropic.api_key", l.Anthropic.APIKey)
	v.SetDefault("llm.anthropic.model", l.Anthropic.Model)
	v.SetDefault("llm.openai.api_key", l.OpenAI.APIKey)
	v.SetDefault("llm.openai.model", l.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", l.OpenAI.BaseURL)
	v.SetDefault("llm.gemini.api_key", l.Gemini.APIKey)
	v.SetDefault("llm.gemini.model", l.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", l.OpenRouter.APIKey)
	v.SetDefault("llm.openrouter.model", l.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", l.OpenRouter.BaseURL)
	v.SetDefault("llm.openrouter.title", l.OpenRouter.Title)
	v.SetDefault("llm.openrouter.referer", l.OpenRouter.Referer)
}

// llmFromViper maps the llm.* keys onto the provider config. The llm
// package keeps plain structs so it does not depend on viper.
func llmFromViper(v *viper.Viper, base llm.Config) llm.Config {
	c := base
	c.Provider = v.GetString("llm.provider")
	c.Timeout = v.GetDuration("llm.timeout")
	c.Retry.MaxAttempts = v.GetInt("llm.retry.max_attempts")
	c.Retry.InitialWait = v.GetDuration("llm.retry.initial_wait")
	c.Retry.MaxWait = v.GetDuration("llm.retry.max_wait")
	c.Retry.Multiplier = v.GetFloat64("llm.retry.multiplier")
	c.Anthropic.APIKey = v.GetString("llm.anthropic.api_key")
	c.Anthropic.Model = v.GetString("llm.anthropic.model")
	c.OpenAI.APIKey = v.GetString("llm.openai.api_key")
	c.OpenAI.Model = v.GetString("llm.openai.model")
	c.OpenAI.BaseURL = v.GetString("llm.openai.base_url")
	c.Gemini.APIKey = v.GetString("llm.gemini.api_key")
	c.Gemini.Model = v.GetString("llm.gemini.model")
	c.OpenRouter.APIKey = v.GetString("llm.openrouter.api_key")
	c.OpenRouter.Model = v.GetString("llm.openrouter.model")
	c.OpenRouter.BaseURL = v.GetString("llm.openrouter.base_url")
	c.OpenRouter.Title = v.GetString("llm.openrouter.title")
	c.OpenRouter.Referer = v.GetString("llm.openrouter.referer")
	return c
}
