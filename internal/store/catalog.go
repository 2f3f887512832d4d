package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/pathfinder/internal/catalog"
)

// CatalogRepo stores courses. It satisfies catalog.Source.
type CatalogRepo struct {
	s *Store
}

var courseColumns = []string{
	"id", "title", "difficulty", "prerequisites", "duration_minutes",
	"content_types", "topics", "published", "lessons", "updated_at",
}

// PutCourses inserts or replaces courses by id in one transaction.
func (r *CatalogRepo) PutCourses(ctx context.Context, courses []catalog.Course) error {
	now := time.Now().UTC()
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range courses {
			if !c.Difficulty.Valid() {
				return fmt.Errorf("course %s: invalid difficulty %q", c.ID, c.Difficulty)
			}
			var encoded [4]string
			for i, v := range []any{c.Prerequisites, c.ContentTypes, c.Topics, c.Lessons} {
				j, err := jsonText(v)
				if err != nil {
					return fmt.Errorf("course %s: %w", c.ID, err)
				}
				encoded[i] = j
			}
			vals := []any{
				c.ID, c.Title, string(c.Difficulty), encoded[0], c.DurationMinutes,
				encoded[1], encoded[2], c.Published, encoded[3], now,
			}

			q, args := builder().Insert(tableCourses).
				Columns(courseColumns...).
				Values(vals...).
				OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
				Query()
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("save course %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// Courses returns every stored course, drafts included, ordered by id.
func (r *CatalogRepo) Courses(ctx context.Context) ([]catalog.Course, error) {
	b := builder()
	q, args := b.Select(courseColumns...).
		From(b.Table(tableCourses)).
		OrderBy("id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var out []catalog.Course
	for rows.Next() {
		var (
			c                                   catalog.Course
			difficulty                          string
			prereqs, ctypes, topics, lessonJSON []byte
			updated                             time.Time
		)
		if err := rows.Scan(&c.ID, &c.Title, &difficulty, &prereqs, &c.DurationMinutes,
			&ctypes, &topics, &c.Published, &lessonJSON, &updated); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		c.Difficulty = catalog.Difficulty(difficulty)
		for _, col := range []struct {
			raw []byte
			dst any
		}{{prereqs, &c.Prerequisites}, {ctypes, &c.ContentTypes}, {topics, &c.Topics}, {lessonJSON, &c.Lessons}} {
			if err := fromJSON(col.raw, col.dst); err != nil {
				return nil, fmt.Errorf("course %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
