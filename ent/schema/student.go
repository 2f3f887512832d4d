package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// Student holds the profile the engine reads: proficiency, preferences
// and progress.
type Student struct {
	ent.Schema
}

func (Student) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.JSON("knowledge", map[string]float64{}).
			Comment("Topic to proficiency in [0,1]"),
		field.JSON("preferences", map[string]any{}),
		field.JSON("completed", []string{}),
		field.JSON("in_progress", []string{}),
		field.Time("updated_at"),
	}
}
