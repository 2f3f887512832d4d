package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Course is a catalog record. Set-valued attributes are stored as JSON.
type Course struct {
	ent.Schema
}

func (Course) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("title"),
		field.Enum("difficulty").
			Values("beginner", "intermediate", "advanced"),
		field.JSON("prerequisites", []string{}),
		field.Int("duration_minutes"),
		field.JSON("content_types", []string{}),
		field.JSON("topics", []string{}),
		field.Bool("published").
			Default(false),
		field.JSON("lessons", []map[string]any{}).
			Comment("Ordered lessons: id, title, duration_minutes, content_type"),
		field.Time("updated_at"),
	}
}

func (Course) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("published"),
	}
}
