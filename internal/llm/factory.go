package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewProvider creates a Provider from configuration, wrapped as
// caller → retry → timeout → logging → base. Each attempt gets its own
// Timeout and is recorded separately.
func NewProvider(ctx context.Context, cfg Config, events EventRecorder, log *zap.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return Wrap(base, cfg, events, log), nil
}

// Wrap applies the standard middleware stack to an existing provider.
func Wrap(base Provider, cfg Config, events EventRecorder, log *zap.Logger) Provider {
	logged := WithLogging(base, events, log)
	timed := WithTimeout(logged, cfg.Timeout)
	return WithRetry(timed, cfg.Retry)
}
