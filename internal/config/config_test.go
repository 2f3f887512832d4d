package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultEngineIsValid(t *testing.T) {
	if err := DefaultEngine().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
engine:
  history_window: 8
  request_timeout: 45s
  disable_ai: true
llm:
  provider: openai
  openai:
    api_key: sk-test
store:
  path: /tmp/pf.db
cache:
  backend: redis
  redis_addr: localhost:6379
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.HistoryWindow != 8 || cfg.Engine.RequestTimeout != 45*time.Second || !cfg.Engine.DisableAI {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.StruggleThreshold != 65 {
		t.Errorf("unset keys keep defaults, got struggle %v", cfg.Engine.StruggleThreshold)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.OpenAI.APIKey != "sk-test" || cfg.LLM.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("llm = %+v", cfg.LLM.OpenAI)
	}
	if cfg.Store.Path != "/tmp/pf.db" || cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("store/cache = %+v %+v", cfg.Store, cfg.Cache)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeConfig(t, "engine:\n  struggle_threshold: 60\n")
	t.Setenv("PATHFINDER_ENGINE_STRUGGLE_THRESHOLD", "55")
	t.Setenv("PATHFINDER_HTTP_ADDR", ":9090")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.StruggleThreshold != 55 {
		t.Errorf("struggle_threshold = %v, want 55", cfg.Engine.StruggleThreshold)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoad_RejectsInvalidEngine(t *testing.T) {
	p := writeConfig(t, "engine:\n  struggle_threshold: 90\n  strength_threshold: 80\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestPaceMultiplier(t *testing.T) {
	e := DefaultEngine()
	for pace, want := range map[string]float64{"slow": 1.3, "fast": 0.8, "normal": 1.0, "": 1.0} {
		if got := e.PaceMultiplier(pace); got != want {
			t.Errorf("PaceMultiplier(%q) = %v, want %v", pace, got, want)
		}
	}
}
