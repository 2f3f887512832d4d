package aigen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/profile"
)

const roadmapSystemPrompt = `You are a curriculum planner building a personalized learning roadmap for one student.

Rules:
- Only reference course or lesson ids that appear in the catalog excerpt. Never invent ids.
- Order the path so that every course comes after all of its prerequisites, unless the prerequisite is already completed.
- Do not include content the student has already completed.
- Address the student's knowledge gaps early.
- You may add remedial items with kind "remedial", a reference of the form review:<topic>, and a non-empty rationale.
- Estimate minutes per item, adjusted for the student's pace.
- difficulty_progression.start must not be harder than difficulty_progression.end (beginner < intermediate < advanced).
- Respond with a single JSON object and nothing else.`

const remedialSystemPrompt = `You are a tutor choosing short remedial steps for a student who just failed an assessment.

Rules:
- Return at most the requested number of items, most useful first.
- Prefer catalog courses or lessons that teach the gap topics; reference them by id.
- Otherwise use kind "remedial" with a reference of the form review:<topic>.
- Every item needs a non-empty rationale naming the gap it addresses.
- Keep each item short: 15 to 60 minutes.
- Respond with a single JSON object and nothing else.`

// Options are the per-request inputs beyond the student and catalog.
type Options struct {
	TargetSkills   []string
	TimeConstraint string
}

func schemaText(s map[string]any) string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func buildRoadmapMessage(sc profile.StudentContext, g *catalog.Graph, opts Options, maxCourses int) string {
	var b strings.Builder

	b.WriteString("Student:\n")
	writeStudent(&b, sc)

	if len(opts.TargetSkills) > 0 {
		fmt.Fprintf(&b, "\nTarget skills: %s\n", strings.Join(opts.TargetSkills, ", "))
	}
	if opts.TimeConstraint != "" {
		fmt.Fprintf(&b, "Time constraint: %s\n", opts.TimeConstraint)
	}

	b.WriteString("\nCatalog excerpt (id | title | difficulty | minutes | prerequisites | topics | content types):\n")
	writeCatalog(&b, g, sc.CompletedSet(), nil, maxCourses)

	b.WriteString("\nRespond with JSON matching this schema:\n")
	b.WriteString(schemaText(RoadmapSchema.Definition))
	return b.String()
}

func buildRemedialMessage(sc profile.StudentContext, g *catalog.Graph, gaps []string, maxItems, maxCourses int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Gap topics: %s\n", strings.Join(gaps, ", "))
	fmt.Fprintf(&b, "Maximum items: %d\n", maxItems)
	fmt.Fprintf(&b, "Pace: %s\n", sc.Preferences.Pace)
	if len(sc.Preferences.PreferredMedia) > 0 {
		fmt.Fprintf(&b, "Preferred media: %s\n", strings.Join(sc.Preferences.PreferredMedia, ", "))
	}
	fmt.Fprintf(&b, "Completed: %s\n", joinOrNone(sc.Completed))

	gapSet := make(map[string]bool, len(gaps))
	for _, t := range gaps {
		gapSet[t] = true
	}
	b.WriteString("\nCatalog content touching the gaps (id | title | difficulty | minutes | prerequisites | topics | content types):\n")
	writeCatalog(&b, g, sc.CompletedSet(), gapSet, maxCourses)

	b.WriteString("\nRespond with JSON matching this schema:\n")
	b.WriteString(schemaText(RemedialSchema.Definition))
	return b.String()
}

func writeStudent(b *strings.Builder, sc profile.StudentContext) {
	p := sc.Preferences
	fmt.Fprintf(b, "- id: %s\n", sc.StudentID)
	fmt.Fprintf(b, "- pace: %s, style: %s\n", p.Pace, p.Style)
	fmt.Fprintf(b, "- preferred media: %s\n", joinOrNone(p.PreferredMedia))
	if p.HoursPerWeek > 0 {
		fmt.Fprintf(b, "- hours per week: %g\n", p.HoursPerWeek)
	}
	if p.TargetDate != nil {
		fmt.Fprintf(b, "- target date: %s\n", p.TargetDate.Format("2006-01-02"))
	}
	fmt.Fprintf(b, "- completed: %s\n", joinOrNone(sc.Completed))
	fmt.Fprintf(b, "- knowledge gaps: %s\n", joinOrNone(sc.KnowledgeGaps))

	if len(sc.Knowledge) > 0 {
		b.WriteString("- proficiency:")
		for _, topic := range sortedKeys(sc.Knowledge) {
			fmt.Fprintf(b, " %s=%.2f", topic, sc.Knowledge[topic])
		}
		b.WriteString("\n")
	}

	// Most recent assessments only; older ones add tokens, not signal.
	hist := sc.History
	if len(hist) > 5 {
		hist = hist[len(hist)-5:]
	}
	for _, a := range hist {
		status := "failed"
		if a.Passed {
			status = "passed"
		}
		fmt.Fprintf(b, "- assessment %s on %s: %.0f (%s), wrong: %s\n",
			a.ID, strings.Join(a.Topics, ","), a.Score, status, joinOrNone(a.WrongTopics))
	}
}

// writeCatalog lists courses in topological order, skipping completed
// ones. When topics is non-nil only courses teaching one of them are
// listed, with their lessons.
func writeCatalog(b *strings.Builder, g *catalog.Graph, completed, topics map[string]bool, max int) {
	n := 0
	for _, id := range g.TopologicalOrder() {
		if completed[id] {
			continue
		}
		c, _ := g.Course(id)
		if topics != nil && !c.Teaches(topics) {
			continue
		}
		if max > 0 && n >= max {
			fmt.Fprintf(b, "... (truncated)\n")
			return
		}
		fmt.Fprintf(b, "%s | %s | %s | %d | %s | %s | %s\n",
			c.ID, c.Title, c.Difficulty, c.DurationMinutes,
			joinOrNone(c.Prerequisites), joinOrNone(c.Topics), joinOrNone(c.ContentTypes))
		if topics != nil {
			for _, l := range c.Lessons {
				fmt.Fprintf(b, "  lesson %s | %s | %d | %s\n", l.ID, l.Title, l.DurationMinutes, l.ContentType)
			}
		}
		n++
	}
	if n == 0 {
		b.WriteString("None\n")
	}
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}
