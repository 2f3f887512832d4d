package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PatternEvent is a detected learning pattern. Rows are appended and only
// ever updated to set superseded_at.
type PatternEvent struct {
	ent.Schema
}

func (PatternEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (PatternEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("pattern_id").
			Unique().
			Immutable(),
		field.String("student_id").
			Immutable(),
		field.Enum("pattern_type").
			Values("struggle_area", "strength_area", "pace_preference", "content_preference"),
		field.String("topic"),
		field.Float("confidence"),
		field.Float("rolling_average"),
		field.Float("variance"),
		field.Int("data_points"),
		field.String("source_record").
			Default(""),
		field.Time("detected_at"),
		field.Time("superseded_at").
			Optional().
			Nillable(),
	}
}

func (PatternEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("student_id", "pattern_type", "topic"),
	}
}
