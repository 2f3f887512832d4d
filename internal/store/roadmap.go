package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/pathfinder/internal/roadmap"
)

// RoadmapRepo keeps the current roadmap per student. Writes are full
// replacements guarded by an expected-version check, so the engine's
// write-after-validate step either lands completely or not at all.
type RoadmapRepo struct {
	s *Store
}

// GetRoadmap returns the student's roadmap or roadmap.ErrNotFound.
func (r *RoadmapRepo) GetRoadmap(ctx context.Context, studentID string) (*roadmap.Roadmap, error) {
	b := builder()
	q, args := b.Select("data").
		From(b.Table(tableRoadmaps)).
		Where(entsql.EQ("student_id", studentID)).
		Query()

	var data []byte
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roadmap.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query roadmap for %s: %w", studentID, err)
	}
	var out roadmap.Roadmap
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode roadmap for %s: %w", studentID, err)
	}
	return &out, nil
}

// PutRoadmap stores rm if the stored version still equals expected (0
// when none is stored). A stale expectation returns
// roadmap.ErrConcurrentAdjustment and writes nothing.
func (r *RoadmapRepo) PutRoadmap(ctx context.Context, rm *roadmap.Roadmap, expected int) error {
	if rm.Version <= expected {
		return fmt.Errorf("roadmap version %d must be greater than %d", rm.Version, expected)
	}
	data, err := jsonText(rm)
	if err != nil {
		return err
	}

	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		b := builder()
		q, args := b.Select("version").
			From(b.Table(tableRoadmaps)).
			Where(entsql.EQ("student_id", rm.StudentID)).
			Query()
		current := 0
		err := tx.QueryRowContext(ctx, q, args...).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read roadmap version: %w", err)
		}
		if current != expected {
			return fmt.Errorf("%w: stored version %d, expected %d", roadmap.ErrConcurrentAdjustment, current, expected)
		}

		if expected == 0 {
			q, args = builder().Insert(tableRoadmaps).
				Columns("id", "student_id", "version", "format_version", "request_key", "strategy", "data", "created_at", "last_adjusted_at").
				Values(rm.ID, rm.StudentID, rm.Version, rm.FormatVersion, rm.RequestKey, string(rm.Strategy), data, rm.CreatedAt.UTC(), rm.LastAdjustedAt.UTC()).
				Query()
		} else {
			q, args = builder().Update(tableRoadmaps).
				Set("id", rm.ID).
				Set("version", rm.Version).
				Set("format_version", rm.FormatVersion).
				Set("request_key", rm.RequestKey).
				Set("strategy", string(rm.Strategy)).
				Set("data", data).
				Set("created_at", rm.CreatedAt.UTC()).
				Set("last_adjusted_at", rm.LastAdjustedAt.UTC()).
				Where(entsql.And(entsql.EQ("student_id", rm.StudentID), entsql.EQ("version", expected))).
				Query()
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("save roadmap for %s: %w", rm.StudentID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return fmt.Errorf("%w: roadmap for %s changed during write", roadmap.ErrConcurrentAdjustment, rm.StudentID)
		}
		return nil
	})
}
