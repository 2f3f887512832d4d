package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/pathfinder/internal/profile"
)

// StudentRepo stores student profiles. It satisfies profile.StudentSource.
type StudentRepo struct {
	s *Store
}

// PutStudent inserts or replaces a student profile.
func (r *StudentRepo) PutStudent(ctx context.Context, st profile.Student) error {
	if st.ID == "" {
		return errors.New("student id is required")
	}
	var encoded [4]string
	for i, v := range []any{st.Knowledge, st.Preferences, st.Completed, st.InProgress} {
		j, err := jsonText(v)
		if err != nil {
			return fmt.Errorf("student %s: %w", st.ID, err)
		}
		encoded[i] = j
	}
	q, args := builder().Insert(tableStudents).
		Columns("id", "knowledge", "preferences", "completed", "in_progress", "updated_at").
		Values(st.ID, encoded[0], encoded[1], encoded[2], encoded[3], time.Now().UTC()).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save student %s: %w", st.ID, err)
	}
	return nil
}

// Student returns the stored profile or an error wrapping ErrNotFound.
func (r *StudentRepo) Student(ctx context.Context, id string) (*profile.Student, error) {
	b := builder()
	q, args := b.Select("knowledge", "preferences", "completed", "in_progress").
		From(b.Table(tableStudents)).
		Where(entsql.EQ("id", id)).
		Query()

	var knowledge, prefs, completed, inProgress []byte
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&knowledge, &prefs, &completed, &inProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query student %s: %w", id, err)
	}

	st := &profile.Student{ID: id}
	for _, col := range []struct {
		raw []byte
		dst any
	}{{knowledge, &st.Knowledge}, {prefs, &st.Preferences}, {completed, &st.Completed}, {inProgress, &st.InProgress}} {
		if err := fromJSON(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("student %s: %w", id, err)
		}
	}
	return st, nil
}

// StudentIDs lists every stored student id in order.
func (r *StudentRepo) StudentIDs(ctx context.Context) ([]string, error) {
	b := builder()
	q, args := b.Select("id").From(b.Table(tableStudents)).OrderBy("id").Query()
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
