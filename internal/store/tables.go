package store

import (
	"fmt"
	"strings"

	"entgo.io/ent"
	sqlschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	entschema "github.com/abhisek/pathfinder/ent/schema"
)

const (
	tableCourses     = "courses"
	tableStudents    = "students"
	tableAssessments = "assessment_events"
	tableRoadmaps    = "roadmaps"
	tablePatterns    = "pattern_events"
	tableLLMEvents   = "llm_request_events"
)

var entities = []struct {
	table  string
	schema ent.Interface
}{
	{tableCourses, entschema.Course{}},
	{tableStudents, entschema.Student{}},
	{tableAssessments, entschema.AssessmentEvent{}},
	{tableRoadmaps, entschema.Roadmap{}},
	{tablePatterns, entschema.PatternEvent{}},
	{tableLLMEvents, entschema.LLMRequestEvent{}},
}

// Tables converts the ent schema definitions into migration tables.
// Schemas without an "id" field get an auto-increment integer key.
func Tables() ([]*sqlschema.Table, error) {
	out := make([]*sqlschema.Table, 0, len(entities))
	for _, e := range entities {
		t, err := buildTable(e.table, e.schema)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", e.table, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func buildTable(name string, s ent.Interface) (*sqlschema.Table, error) {
	var (
		fields  []ent.Field
		indexes []ent.Index
	)
	for _, m := range s.Mixin() {
		fields = append(fields, m.Fields()...)
		indexes = append(indexes, m.Indexes()...)
	}
	fields = append(fields, s.Fields()...)
	indexes = append(indexes, s.Indexes()...)

	t := &sqlschema.Table{Name: name}
	byName := make(map[string]*sqlschema.Column, len(fields)+1)
	for _, f := range fields {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, fmt.Errorf("field %s: %w", d.Name, d.Err)
		}
		c := &sqlschema.Column{
			Name:     d.Name,
			Type:     d.Info.Type,
			Unique:   d.Unique,
			Nullable: d.Optional || d.Nillable,
			Size:     int64(d.Size),
			Comment:  d.Comment,
		}
		for _, e := range d.Enums {
			c.Enums = append(c.Enums, e.V)
		}
		if v, ok := scalarDefault(d.Default); ok {
			c.Default = v
		}
		if d.Name == "id" {
			t.PrimaryKey = []*sqlschema.Column{c}
		}
		t.Columns = append(t.Columns, c)
		byName[d.Name] = c
	}
	if t.PrimaryKey == nil {
		id := &sqlschema.Column{Name: "id", Type: field.TypeInt, Increment: true}
		t.Columns = append([]*sqlschema.Column{id}, t.Columns...)
		t.PrimaryKey = []*sqlschema.Column{id}
	}

	for _, ix := range indexes {
		d := ix.Descriptor()
		idx := &sqlschema.Index{
			Name:   name + "_" + strings.Join(d.Fields, "_"),
			Unique: d.Unique,
		}
		for _, fn := range d.Fields {
			c, ok := byName[fn]
			if !ok {
				return nil, fmt.Errorf("index on unknown field %q", fn)
			}
			idx.Columns = append(idx.Columns, c)
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return t, nil
}

// scalarDefault keeps literal defaults. Function defaults such as
// time.Now are applied by the repositories.
func scalarDefault(v any) (any, bool) {
	switch v.(type) {
	case string, bool, int, int64, float64:
		return v, true
	}
	return nil, false
}
