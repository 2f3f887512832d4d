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

// ErrDuplicateAssessment is returned when an assessment id is recorded twice.
var ErrDuplicateAssessment = errors.New("assessment already recorded")

// AssessmentRepo is the append-only assessment log. It satisfies
// profile.AssessmentSource.
type AssessmentRepo struct {
	s *Store
}

var assessmentColumns = []string{"assessment_id", "topics", "score", "passed", "wrong_topics", "taken_at"}

// AppendAssessment records a graded assessment. Records are immutable.
func (r *AssessmentRepo) AppendAssessment(ctx context.Context, studentID string, rec profile.AssessmentRecord) error {
	if rec.ID == "" {
		return errors.New("assessment id is required")
	}
	if rec.Score < 0 || rec.Score > 100 {
		return fmt.Errorf("assessment %s: score %v outside 0..100", rec.ID, rec.Score)
	}
	topics, err := jsonText(rec.Topics)
	if err != nil {
		return err
	}
	wrong, err := jsonText(rec.WrongTopics)
	if err != nil {
		return err
	}
	taken := rec.Timestamp
	if taken.IsZero() {
		taken = time.Now()
	}

	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		b := builder()
		q, args := b.Select(entsql.Count("*")).
			From(b.Table(tableAssessments)).
			Where(entsql.EQ("assessment_id", rec.ID)).
			Query()
		var n int
		if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
			return fmt.Errorf("check assessment %s: %w", rec.ID, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateAssessment, rec.ID)
		}

		seq, err := r.s.seq.next(ctx, tx)
		if err != nil {
			return err
		}
		q, args = builder().Insert(tableAssessments).
			Columns("sequence", "timestamp", "student_id", "assessment_id", "topics", "score", "passed", "wrong_topics", "taken_at").
			Values(seq, time.Now().UTC(), studentID, rec.ID, topics, rec.Score, rec.Passed, wrong, taken.UTC()).
			Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("save assessment %s: %w", rec.ID, err)
		}
		return nil
	})
}

// Assessments returns the student's history ordered by (taken_at, id).
func (r *AssessmentRepo) Assessments(ctx context.Context, studentID string) ([]profile.AssessmentRecord, error) {
	b := builder()
	q, args := b.Select(assessmentColumns...).
		From(b.Table(tableAssessments)).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy("taken_at", "assessment_id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	var out []profile.AssessmentRecord
	for rows.Next() {
		var (
			rec           profile.AssessmentRecord
			topics, wrong []byte
		)
		if err := rows.Scan(&rec.ID, &topics, &rec.Score, &rec.Passed, &wrong, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if err := fromJSON(topics, &rec.Topics); err != nil {
			return nil, err
		}
		if err := fromJSON(wrong, &rec.WrongTopics); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Assessment returns one record by id.
func (r *AssessmentRepo) Assessment(ctx context.Context, studentID, id string) (profile.AssessmentRecord, error) {
	list, err := r.Assessments(ctx, studentID)
	if err != nil {
		return profile.AssessmentRecord{}, err
	}
	for _, a := range list {
		if a.ID == id {
			return a, nil
		}
	}
	return profile.AssessmentRecord{}, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
}
