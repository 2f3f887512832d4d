package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// NodeKind distinguishes the two kinds of referencable catalog content.
type NodeKind string

const (
	NodeCourse NodeKind = "course"
	NodeLesson NodeKind = "lesson"
)

// Node is a resolved catalog reference. Lessons inherit difficulty,
// topics and prerequisites from their course.
type Node struct {
	ID              string
	Kind            NodeKind
	CourseID        string
	Title           string
	Difficulty      Difficulty
	DurationMinutes int
	ContentTypes    []string
	Topics          []string
	Prerequisites   []string
}

// LoadOptions controls which catalog records enter the graph.
type LoadOptions struct {
	// AllowDrafts includes unpublished courses (instructor preview).
	AllowDrafts bool
}

type lessonRef struct {
	courseID string
	index    int
}

// Graph is the course prerequisite DAG with precomputed indices.
// A Graph is immutable after Load and safe for concurrent readers.
type Graph struct {
	courses     []Course
	byID        map[string]*Course
	lessons     map[string]lessonRef
	dependents  map[string][]string
	missing     map[string][]string
	topoOrder   []string
	topoIndex   map[string]int
	fingerprint string
}

// Load builds the graph from catalog records. Unpublished courses are
// skipped unless opts.AllowDrafts is set. Prerequisites that point at
// courses outside the graph are kept as missing edges.
// Returns a *CycleError (matching ErrCycleDetected) when the
// prerequisite relation is cyclic.
func Load(courses []Course, opts LoadOptions) (*Graph, error) {
	var kept []Course
	for _, c := range courses {
		if !c.Published && !opts.AllowDrafts {
			continue
		}
		kept = append(kept, normalizeCourse(c))
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })

	if err := validateCourses(kept); err != nil {
		return nil, err
	}

	g := &Graph{
		courses:    kept,
		byID:       make(map[string]*Course, len(kept)),
		lessons:    make(map[string]lessonRef),
		dependents: make(map[string][]string),
		missing:    make(map[string][]string),
		topoIndex:  make(map[string]int, len(kept)),
	}

	for i := range g.courses {
		g.byID[g.courses[i].ID] = &g.courses[i]
	}
	for i := range g.courses {
		c := &g.courses[i]
		for j, l := range c.Lessons {
			if _, dup := g.byID[l.ID]; dup {
				return nil, fmt.Errorf("lesson %q collides with a course id", l.ID)
			}
			if _, dup := g.lessons[l.ID]; dup {
				return nil, fmt.Errorf("duplicate lesson id: %q", l.ID)
			}
			g.lessons[l.ID] = lessonRef{courseID: c.ID, index: j}
		}
	}

	// Reverse edges and missing prerequisites.
	for i := range g.courses {
		c := &g.courses[i]
		for _, prereqID := range c.Prerequisites {
			if _, ok := g.byID[prereqID]; !ok {
				g.missing[c.ID] = append(g.missing[c.ID], prereqID)
				continue
			}
			g.dependents[prereqID] = append(g.dependents[prereqID], c.ID)
		}
	}

	if cycle := findCycle(g); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	g.topoOrder = kahnOrder(g)
	for i, id := range g.topoOrder {
		g.topoIndex[id] = i
	}

	fp, err := fingerprint(g.courses)
	if err != nil {
		return nil, fmt.Errorf("fingerprint catalog: %w", err)
	}
	g.fingerprint = fp

	return g, nil
}

// normalizeCourse returns a copy with sorted, de-duplicated sets so that
// the graph (and its fingerprint) do not depend on input ordering.
func normalizeCourse(c Course) Course {
	c.Prerequisites = sortedSet(c.Prerequisites)
	c.ContentTypes = sortedSet(c.ContentTypes)
	c.Topics = sortedSet(c.Topics)
	c.Lessons = slices.Clone(c.Lessons)
	return c
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}

// kahnOrder returns course ids in a deterministic topological order,
// prerequisites first.
func kahnOrder(g *Graph) []string {
	inDegree := make(map[string]int, len(g.courses))
	for i := range g.courses {
		c := &g.courses[i]
		inDegree[c.ID] = len(c.Prerequisites) - len(g.missing[c.ID])
	}

	var queue []string
	for i := range g.courses {
		if inDegree[g.courses[i].ID] == 0 {
			queue = append(queue, g.courses[i].ID)
		}
	}

	order := make([]string, 0, len(g.courses))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		deps := slices.Clone(g.dependents[id])
		sort.Strings(deps)
		for _, depID := range deps {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}
	return order
}

func fingerprint(courses []Course) (string, error) {
	b, err := json.Marshal(courses)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Len returns the number of courses in the graph.
func (g *Graph) Len() int {
	return len(g.courses)
}

// Fingerprint is a content hash of the loaded courses.
func (g *Graph) Fingerprint() string {
	return g.fingerprint
}

// Courses returns all courses sorted by id.
func (g *Graph) Courses() []Course {
	return slices.Clone(g.courses)
}

// Course returns a course by id.
func (g *Graph) Course(id string) (Course, bool) {
	c, ok := g.byID[id]
	if !ok {
		return Course{}, false
	}
	return *c, true
}

// Resolve looks up a course or lesson reference.
func (g *Graph) Resolve(ref string) (Node, bool) {
	if c, ok := g.byID[ref]; ok {
		return Node{
			ID:              c.ID,
			Kind:            NodeCourse,
			CourseID:        c.ID,
			Title:           c.Title,
			Difficulty:      c.Difficulty,
			DurationMinutes: c.DurationMinutes,
			ContentTypes:    c.ContentTypes,
			Topics:          c.Topics,
			Prerequisites:   c.Prerequisites,
		}, true
	}
	lr, ok := g.lessons[ref]
	if !ok {
		return Node{}, false
	}
	c := g.byID[lr.courseID]
	l := c.Lessons[lr.index]
	var contentTypes []string
	if l.ContentType != "" {
		contentTypes = []string{l.ContentType}
	}
	return Node{
		ID:              l.ID,
		Kind:            NodeLesson,
		CourseID:        c.ID,
		Title:           l.Title,
		Difficulty:      c.Difficulty,
		DurationMinutes: l.DurationMinutes,
		ContentTypes:    contentTypes,
		Topics:          c.Topics,
		Prerequisites:   c.Prerequisites,
	}, true
}

// Lessons returns the lessons of a course in catalog order.
func (g *Graph) Lessons(courseID string) []Lesson {
	c, ok := g.byID[courseID]
	if !ok {
		return nil
	}
	return slices.Clone(c.Lessons)
}

// Prerequisites returns the declared prerequisite ids of a reference,
// including ones missing from the graph.
func (g *Graph) Prerequisites(ref string) []string {
	n, ok := g.Resolve(ref)
	if !ok {
		return nil
	}
	return slices.Clone(n.Prerequisites)
}

// Missing returns prerequisite ids of a course that are not in the graph.
func (g *Graph) Missing(courseID string) []string {
	return slices.Clone(g.missing[courseID])
}

// Dependents returns courses that directly list id as a prerequisite.
func (g *Graph) Dependents(id string) []string {
	deps := slices.Clone(g.dependents[id])
	sort.Strings(deps)
	return deps
}

// Ancestors returns the transitive in-graph prerequisites of a reference,
// in topological order.
func (g *Graph) Ancestors(ref string) []string {
	n, ok := g.Resolve(ref)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		c, ok := g.byID[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		for _, p := range c.Prerequisites {
			visit(p)
		}
	}
	for _, p := range n.Prerequisites {
		visit(p)
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return g.topoIndex[out[i]] < g.topoIndex[out[j]] })
	return out
}

// CoursesTeaching returns courses covering any of the topics, sorted by
// difficulty then id.
func (g *Graph) CoursesTeaching(topics ...string) []Course {
	want := make(map[string]bool, len(topics))
	for _, t := range topics {
		want[t] = true
	}
	var out []Course
	for _, c := range g.courses {
		if c.Teaches(want) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Difficulty.Rank() != out[j].Difficulty.Rank() {
			return out[i].Difficulty.Rank() < out[j].Difficulty.Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TopologicalOrder returns course ids with prerequisites first.
func (g *Graph) TopologicalOrder() []string {
	return slices.Clone(g.topoOrder)
}

// TopoIndex returns the topological position of a course, or -1.
func (g *Graph) TopoIndex(courseID string) int {
	if i, ok := g.topoIndex[courseID]; ok {
		return i
	}
	return -1
}

// Blocked reports whether ref can never be scheduled for a student with
// the given completed set: some prerequisite on its uncompleted ancestry
// is missing from the graph.
func (g *Graph) Blocked(ref string, completed map[string]bool) bool {
	n, ok := g.Resolve(ref)
	if !ok {
		return false
	}
	seen := make(map[string]bool)
	var blocked func(ids []string) bool
	blocked = func(ids []string) bool {
		for _, p := range ids {
			if completed[p] || seen[p] {
				continue
			}
			seen[p] = true
			c, ok := g.byID[p]
			if !ok || blocked(c.Prerequisites) {
				return true
			}
		}
		return false
	}
	return blocked(n.Prerequisites)
}

// PendingAncestors returns the in-graph prerequisites a student still has
// to take before ref, in topological order. The walk stops at completed
// courses.
func (g *Graph) PendingAncestors(ref string, completed map[string]bool) []string {
	n, ok := g.Resolve(ref)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var visit func(ids []string)
	visit = func(ids []string) {
		for _, p := range ids {
			if completed[p] || seen[p] {
				continue
			}
			c, ok := g.byID[p]
			if !ok {
				continue
			}
			seen[p] = true
			visit(c.Prerequisites)
		}
	}
	visit(n.Prerequisites)

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return g.topoIndex[out[i]] < g.topoIndex[out[j]] })
	return out
}
