package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Difficulty is the ordered difficulty level of a course.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// AllDifficulties returns the difficulty levels in ascending order.
func AllDifficulties() []Difficulty {
	return []Difficulty{Beginner, Intermediate, Advanced}
}

// Rank returns the position of d in the ordering (beginner = 0).
// Unknown values rank as -1.
func (d Difficulty) Rank() int {
	switch d {
	case Beginner:
		return 0
	case Intermediate:
		return 1
	case Advanced:
		return 2
	default:
		return -1
	}
}

// Valid reports whether d is one of the known levels.
func (d Difficulty) Valid() bool {
	return d.Rank() >= 0
}

// Less reports whether d is strictly easier than other.
func (d Difficulty) Less(other Difficulty) bool {
	return d.Rank() < other.Rank()
}

// ParseDifficulty converts a free-form string into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Lesson is a referencable unit inside a course.
type Lesson struct {
	ID              string `yaml:"id" json:"id"`
	Title           string `yaml:"title" json:"title"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
	ContentType     string `yaml:"content_type" json:"content_type"`
}

// Course is a catalog record. The engine never mutates courses.
type Course struct {
	ID              string     `yaml:"id" json:"id"`
	Title           string     `yaml:"title" json:"title"`
	Difficulty      Difficulty `yaml:"difficulty" json:"difficulty"`
	Prerequisites   []string   `yaml:"prerequisites" json:"prerequisites"`
	DurationMinutes int        `yaml:"duration_minutes" json:"duration_minutes"`
	ContentTypes    []string   `yaml:"content_types" json:"content_types"`
	Topics          []string   `yaml:"topics" json:"topics"`
	Published       bool       `yaml:"published" json:"published"`
	Lessons         []Lesson   `yaml:"lessons" json:"lessons"`
}

// Teaches reports whether the course covers any of the given topics.
func (c Course) Teaches(topics map[string]bool) bool {
	for _, t := range c.Topics {
		if topics[t] {
			return true
		}
	}
	return false
}

// Source is the read side of the course catalog.
type Source interface {
	Courses(ctx context.Context) ([]Course, error)
}

// StaticSource serves a fixed slice of courses.
type StaticSource []Course

func (s StaticSource) Courses(_ context.Context) ([]Course, error) {
	out := make([]Course, len(s))
	copy(out, s)
	return out, nil
}

// LoadFrom reads every course from src and builds the graph.
func LoadFrom(ctx context.Context, src Source, opts LoadOptions) (*Graph, error) {
	courses, err := src.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Load(courses, opts)
}
