package catalog

import (
	"errors"
	"slices"
	"testing"
)

func testCourses() []Course {
	return []Course{
		{ID: "algebra-1", Title: "Algebra I", Difficulty: Beginner, DurationMinutes: 120, Topics: []string{"algebra"}, Published: true,
			Lessons: []Lesson{{ID: "alg1-l1", Title: "Variables", DurationMinutes: 20, ContentType: "video"}}},
		{ID: "algebra-2", Title: "Algebra II", Difficulty: Intermediate, DurationMinutes: 180, Topics: []string{"algebra"},
			Prerequisites: []string{"algebra-1"}, Published: true},
		{ID: "calculus", Title: "Calculus", Difficulty: Advanced, DurationMinutes: 240, Topics: []string{"calculus"},
			Prerequisites: []string{"algebra-2", "trig"}, Published: true},
		{ID: "trig", Title: "Trigonometry", Difficulty: Intermediate, DurationMinutes: 90, Topics: []string{"trigonometry"},
			Prerequisites: []string{"algebra-1"}, Published: true},
		{ID: "stats-draft", Title: "Statistics (draft)", Difficulty: Beginner, DurationMinutes: 60, Topics: []string{"statistics"}},
	}
}

func mustLoad(t *testing.T, courses []Course, opts LoadOptions) *Graph {
	t.Helper()
	g, err := Load(courses, opts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return g
}

func TestLoad_ExcludesDrafts(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{})
	if g.Len() != 4 {
		t.Fatalf("got %d courses, want 4", g.Len())
	}
	if _, ok := g.Course("stats-draft"); ok {
		t.Error("unpublished course should be excluded")
	}
}

func TestLoad_AllowDrafts(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{AllowDrafts: true})
	if _, ok := g.Course("stats-draft"); !ok {
		t.Error("draft course should be included in preview mode")
	}
}

func TestLoad_CycleDetected(t *testing.T) {
	courses := []Course{
		{ID: "A", Difficulty: Beginner, Prerequisites: []string{"B"}, Published: true},
		{ID: "B", Difficulty: Beginner, Prerequisites: []string{"A"}, Published: true},
	}
	g, err := Load(courses, LoadOptions{})
	if g != nil {
		t.Fatal("expected nil graph on cycle")
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(ce.Path) != 3 || ce.Path[0] != ce.Path[len(ce.Path)-1] {
		t.Errorf("unexpected cycle path %v", ce.Path)
	}
}

func TestLoad_LongCycle(t *testing.T) {
	courses := []Course{
		{ID: "root", Difficulty: Beginner, Published: true},
		{ID: "x", Difficulty: Beginner, Prerequisites: []string{"root", "z"}, Published: true},
		{ID: "y", Difficulty: Beginner, Prerequisites: []string{"x"}, Published: true},
		{ID: "z", Difficulty: Beginner, Prerequisites: []string{"y"}, Published: true},
	}
	_, err := Load(courses, LoadOptions{})
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	for _, id := range []string{"x", "y", "z"} {
		if !slices.Contains(ce.Path, id) {
			t.Errorf("cycle path %v missing %q", ce.Path, id)
		}
	}
	if slices.Contains(ce.Path, "root") {
		t.Errorf("cycle path %v should not include acyclic root", ce.Path)
	}
}

func TestLoad_DuplicateID(t *testing.T) {
	courses := []Course{
		{ID: "A", Difficulty: Beginner, Published: true},
		{ID: "A", Difficulty: Advanced, Published: true},
	}
	if _, err := Load(courses, LoadOptions{}); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestLoad_UnknownDifficulty(t *testing.T) {
	courses := []Course{{ID: "A", Difficulty: "expert", Published: true}}
	if _, err := Load(courses, LoadOptions{}); err == nil {
		t.Fatal("expected error for unknown difficulty")
	}
}

func TestLoad_MissingPrerequisiteKept(t *testing.T) {
	courses := []Course{
		{ID: "B", Difficulty: Beginner, Prerequisites: []string{"A"}, Published: true},
		{ID: "A", Difficulty: Beginner},
	}
	g := mustLoad(t, courses, LoadOptions{})
	if got := g.Missing("B"); len(got) != 1 || got[0] != "A" {
		t.Errorf("Missing(B) = %v, want [A]", got)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{})
	order := g.TopologicalOrder()
	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, c := range g.Courses() {
		for _, p := range c.Prerequisites {
			if pos[p] >= pos[c.ID] {
				t.Errorf("prerequisite %q at %d not before %q at %d", p, pos[p], c.ID, pos[c.ID])
			}
		}
	}
}

func TestResolve_Lesson(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{})
	n, ok := g.Resolve("alg1-l1")
	if !ok {
		t.Fatal("lesson should resolve")
	}
	if n.Kind != NodeLesson || n.CourseID != "algebra-1" {
		t.Errorf("unexpected node %+v", n)
	}
	if n.Difficulty != Beginner {
		t.Errorf("lesson should inherit course difficulty, got %q", n.Difficulty)
	}
	if len(n.ContentTypes) != 1 || n.ContentTypes[0] != "video" {
		t.Errorf("unexpected content types %v", n.ContentTypes)
	}
}

func TestAncestors(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{})
	got := g.Ancestors("calculus")
	want := []string{"algebra-1", "algebra-2", "trig"}
	if !slices.Equal(got, want) {
		t.Errorf("Ancestors(calculus) = %v, want %v", got, want)
	}
}

func TestCoursesTeaching_SortedByDifficulty(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{})
	got := g.CoursesTeaching("algebra")
	if len(got) != 2 || got[0].ID != "algebra-1" || got[1].ID != "algebra-2" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := mustLoad(t, testCourses(), LoadOptions{})
	reversed := testCourses()
	slices.Reverse(reversed)
	b := mustLoad(t, reversed, LoadOptions{})
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should not depend on input order")
	}
}

func TestParseFile(t *testing.T) {
	data := []byte(`
courses:
  - id: A
    title: Course A
    difficulty: beginner
    duration_minutes: 60
    topics: [algebra]
    published: true
  - id: B
    title: Course B
    difficulty: intermediate
    prerequisites: [A]
    duration_minutes: 90
    published: true
`)
	courses, err := ParseFile(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("got %d courses, want 2", len(courses))
	}
	if courses[1].Prerequisites[0] != "A" || courses[1].Difficulty != Intermediate {
		t.Errorf("unexpected course %+v", courses[1])
	}
}

func TestBlocked(t *testing.T) {
	courses := []Course{
		{ID: "A", Difficulty: Beginner, Prerequisites: []string{"retired"}, Published: true},
		{ID: "B", Difficulty: Beginner, Prerequisites: []string{"A"}, Published: true},
		{ID: "C", Difficulty: Beginner, Published: true},
	}
	g := mustLoad(t, courses, LoadOptions{})

	if !g.Blocked("B", nil) {
		t.Error("B depends on A whose prerequisite is missing")
	}
	if g.Blocked("B", map[string]bool{"A": true}) {
		t.Error("completing A unblocks B")
	}
	if g.Blocked("A", map[string]bool{"retired": true}) {
		t.Error("completed missing prerequisite should not block")
	}
	if g.Blocked("C", nil) {
		t.Error("C has no prerequisites")
	}
}

func TestPendingAncestors_StopsAtCompleted(t *testing.T) {
	g := mustLoad(t, testCourses(), LoadOptions{})
	got := g.PendingAncestors("calculus", map[string]bool{"algebra-2": true})
	// algebra-1 is still needed through trig.
	want := []string{"algebra-1", "trig"}
	if !slices.Equal(got, want) {
		t.Errorf("PendingAncestors = %v, want %v", got, want)
	}
	if got := g.PendingAncestors("calculus", map[string]bool{"algebra-2": true, "trig": true}); len(got) != 0 {
		t.Errorf("everything needed is completed, got %v", got)
	}
}
