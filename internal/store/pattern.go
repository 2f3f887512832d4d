package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/pathfinder/internal/roadmap"
)

// PatternRepo is the append-only pattern log. Superseded rows keep their
// data and gain superseded_at.
type PatternRepo struct {
	s *Store
}

var patternColumns = []string{
	"pattern_id", "student_id", "pattern_type", "topic", "confidence", "rolling_average",
	"variance", "data_points", "source_record", "detected_at", "superseded_at",
}

// ActivePatterns returns the student's patterns that were not superseded.
func (r *PatternRepo) ActivePatterns(ctx context.Context, studentID string) ([]roadmap.Pattern, error) {
	return r.query(ctx, entsql.And(entsql.EQ("student_id", studentID), entsql.IsNull("superseded_at")))
}

// History returns every pattern record for the student, oldest first.
func (r *PatternRepo) History(ctx context.Context, studentID string) ([]roadmap.Pattern, error) {
	return r.query(ctx, entsql.EQ("student_id", studentID))
}

// ApplyPatterns supersedes the given ids and appends the new records in
// one transaction.
func (r *PatternRepo) ApplyPatterns(ctx context.Context, studentID string, supersede []string, insert []roadmap.Pattern, at time.Time) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		if len(supersede) > 0 {
			q, args := builder().Update(tablePatterns).
				Set("superseded_at", at.UTC()).
				Where(entsql.And(
					entsql.EQ("student_id", studentID),
					entsql.In("pattern_id", anys(supersede)...),
					entsql.IsNull("superseded_at"),
				)).
				Query()
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("supersede patterns: %w", err)
			}
		}

		for _, p := range insert {
			if p.ID == "" {
				return fmt.Errorf("pattern for %s/%s has no id", p.Type, p.Data.Topic)
			}
			seq, err := r.s.seq.next(ctx, tx)
			if err != nil {
				return err
			}
			q, args := builder().Insert(tablePatterns).
				Columns(append([]string{"sequence", "timestamp"}, patternColumns[:len(patternColumns)-1]...)...).
				Values(seq, at.UTC(), p.ID, studentID, string(p.Type), p.Data.Topic, p.Data.Confidence,
					p.Data.RollingAvg, p.Data.Variance, p.Data.DataPoints, p.Data.SourceRecord, p.DetectedAt.UTC()).
				Query()
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("save pattern %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (r *PatternRepo) query(ctx context.Context, where *entsql.Predicate) ([]roadmap.Pattern, error) {
	b := builder()
	q, args := b.Select(patternColumns...).
		From(b.Table(tablePatterns)).
		Where(where).
		OrderBy("sequence").
		Query()
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []roadmap.Pattern
	for rows.Next() {
		var (
			p          roadmap.Pattern
			kind       string
			superseded sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.StudentID, &kind, &p.Data.Topic, &p.Data.Confidence, &p.Data.RollingAvg,
			&p.Data.Variance, &p.Data.DataPoints, &p.Data.SourceRecord, &p.DetectedAt, &superseded); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Type = roadmap.PatternType(kind)
		p.DetectedAt = p.DetectedAt.UTC()
		if superseded.Valid {
			t := superseded.Time.UTC()
			p.SupersededAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
