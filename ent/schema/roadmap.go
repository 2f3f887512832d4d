package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// Roadmap is the current learning path of one student. Writes replace the
// whole row and must name the version they were based on.
type Roadmap struct {
	ent.Schema
}

func (Roadmap) Fields() []ent.Field {
	return []ent.Field{
		field.String("id"),
		field.String("student_id").
			Unique(),
		field.Int("version"),
		field.String("format_version"),
		field.String("request_key").
			Default(""),
		field.Enum("strategy").
			Values("ai", "rule_based", "hybrid"),
		field.JSON("data", map[string]any{}).
			Comment("Full roadmap document"),
		field.Time("created_at"),
		field.Time("last_adjusted_at"),
	}
}
