package llm

import (
	"context"
	"encoding/json"
)

// Provider is a single request/response call to a reasoning model.
// Output is untrusted; callers validate it themselves.
type Provider interface {
	// Generate sends a prompt and returns the model's JSON output.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System sets the model's role and output contract.
	System string

	// Messages is the conversation. Roadmap requests are single-turn.
	Messages []Message

	// Schema, when set, asks the provider for JSON output. See
	// Schema.Lenient for how strictly it is enforced.
	Schema *Schema

	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies this schema, e.g. "learning-roadmap". Compiled
	// schemas are cached by name.
	Name string

	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any

	// Lenient skips native structured output and schema validation in the
	// provider; the response only has to be well-formed JSON. Used when
	// the caller repairs the payload itself.
	Lenient bool
}

// Response holds the model's output.
type Response struct {
	// Content is the JSON output, with any markdown fence removed.
	Content json.RawMessage

	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
