package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AssessmentEvent is one graded assessment. Rows are never updated.
type AssessmentEvent struct {
	ent.Schema
}

func (AssessmentEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (AssessmentEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("assessment_id").
			Unique().
			Immutable(),
		field.String("student_id").
			Immutable(),
		field.JSON("topics", []string{}),
		field.Float("score").
			Comment("0 to 100"),
		field.Bool("passed"),
		field.JSON("wrong_topics", []string{}),
		field.Time("taken_at").
			Comment("When the student took the assessment"),
	}
}

func (AssessmentEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("student_id", "taken_at"),
	}
}
