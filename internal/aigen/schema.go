package aigen

import "github.com/abhisek/pathfinder/internal/llm"

var pathItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"reference": map[string]any{
			"type":        "string",
			"description": "Course or lesson id from the catalog, or review:<topic> for a remedial item",
		},
		"kind": map[string]any{
			"type": "string",
			"enum": []any{"course", "lesson", "assessment", "remedial"},
		},
		"estimated_minutes": map[string]any{"type": "integer"},
		"difficulty": map[string]any{
			"type": "string",
			"enum": []any{"beginner", "intermediate", "advanced"},
		},
		"rationale": map[string]any{
			"type":        "string",
			"description": "Why this step is here. Required for remedial items.",
		},
		"topics": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []any{"reference", "kind"},
}

// RoadmapSchema describes the payload asked of the provider. It is
// lenient: the provider only checks for JSON, and the normalizer repairs
// or rejects the shape.
var RoadmapSchema = &llm.Schema{
	Name:        "learning-roadmap",
	Description: "An ordered, personalized learning path over the given catalog",
	Lenient:     true,
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"learning_path": map[string]any{
				"type":  "array",
				"items": pathItemSchema,
			},
			"difficulty_progression": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start": map[string]any{"type": "string"},
					"end":   map[string]any{"type": "string"},
				},
			},
			"personalization_reasoning": map[string]any{"type": "string"},
			"alternative_paths": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"success_metrics": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"learning_path", "difficulty_progression", "personalization_reasoning"},
	},
}

// RemedialSchema describes a short list of remedial steps for gap topics.
var RemedialSchema = &llm.Schema{
	Name:        "remedial-items",
	Description: "Remedial learning steps addressing specific knowledge gaps",
	Lenient:     true,
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":  "array",
				"items": pathItemSchema,
			},
		},
		"required": []any{"items"},
	},
}
