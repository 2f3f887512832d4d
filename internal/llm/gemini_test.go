package llm

import (
	"testing"

	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	if got := resolveModel("gemini-flash", geminiModels); got != "gemini-2.5-flash" {
		t.Errorf("resolveModel(gemini-flash) = %q", got)
	}
	if got := resolveModel("gemini-2.0-flash", geminiModels); got != "gemini-2.0-flash" {
		t.Errorf("pass-through failed: %q", got)
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"learning_path": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reference": map[string]any{"type": "string"},
						"kind":      map[string]any{"type": "string", "enum": []string{"course", "lesson", "assessment", "remedial"}},
						"minutes":   map[string]any{"type": "integer"},
					},
				},
			},
		},
		"required": []any{"learning_path"},
	}

	schema := buildGeminiSchema(def)
	if schema.Type != genai.TypeObject {
		t.Fatalf("expected OBJECT, got %s", schema.Type)
	}
	path := schema.Properties["learning_path"]
	if path == nil || path.Type != genai.TypeArray {
		t.Fatalf("learning_path should be ARRAY, got %+v", path)
	}
	item := path.Items
	if item.Properties["minutes"].Type != genai.TypeInteger {
		t.Errorf("minutes should be INTEGER, got %s", item.Properties["minutes"].Type)
	}
	if len(item.Properties["kind"].Enum) != 4 {
		t.Errorf("kind enum = %v", item.Properties["kind"].Enum)
	}
	if len(schema.Required) != 1 {
		t.Errorf("required = %v", schema.Required)
	}
}
