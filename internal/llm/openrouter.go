package llm

import (
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterTitle   = "pathfinder"
)

// openRouterModels maps the friendly names used by the other providers to
// OpenRouter's vendor-prefixed IDs.
var openRouterModels = map[string]string{
	"gemini-flash":  "google/gemini-2.5-flash",
	"gemini-pro":    "google/gemini-2.5-pro",
	"claude-sonnet": "anthropic/claude-sonnet-4.5",
	"claude-haiku":  "anthropic/claude-3.5-haiku",
	"gpt-4o":        "openai/gpt-4o",
	"gpt-4o-mini":   "openai/gpt-4o-mini",
}

// OpenRouterProvider wraps OpenAIProvider with OpenRouter-specific defaults.
// OpenRouter exposes an OpenAI-compatible API, so the underlying SDK is
// reused. Requests carry app attribution headers.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider creates a provider targeting the OpenRouter API.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	if config.BaseURL == "" {
		config.BaseURL = defaultOpenRouterBaseURL
	}
	title := cfg.Title
	if title == "" {
		title = defaultOpenRouterTitle
	}
	config.HTTPClient = &attributedDoer{inner: config.HTTPClient, title: title, referer: cfg.Referer}

	return &OpenRouterProvider{OpenAIProvider: &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  resolveModel(cfg.Model, openRouterModels),
	}}, nil
}

// attributedDoer adds OpenRouter's optional X-Title and HTTP-Referer
// headers to every request.
type attributedDoer struct {
	inner   openai.HTTPDoer
	title   string
	referer string
}

func (d *attributedDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Title", d.title)
	if d.referer != "" {
		req.Header.Set("HTTP-Referer", d.referer)
	}
	return d.inner.Do(req)
}
