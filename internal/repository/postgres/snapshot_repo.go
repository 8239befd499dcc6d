package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// SnapshotRepo implements SnapshotRepository using PostgreSQL.
type SnapshotRepo struct{ db *DB }

// NewSnapshotRepo constructs a snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// Upsert writes the snapshot keyed by (user_id, week_start, scope_table_id).
func (r *SnapshotRepo) Upsert(ctx context.Context, s *model.WeeklySnapshot) error {
	focus := s.FocusBreakdown
	if focus == nil {
		focus = map[string]int{}
	}
	raw, err := json.Marshal(focus)
	if err != nil {
		return fmt.Errorf("marshal focus breakdown: %w", err)
	}
	const q = `
INSERT INTO weekly_snapshots
  (user_id, week_start, scope_table_id, completed_tasks, on_time_rate, median_cycle_time_days,
   wip_count, overdue_open, focus_breakdown, computed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (user_id, week_start, scope_table_id) DO UPDATE SET
  completed_tasks=EXCLUDED.completed_tasks, on_time_rate=EXCLUDED.on_time_rate,
  median_cycle_time_days=EXCLUDED.median_cycle_time_days, wip_count=EXCLUDED.wip_count,
  overdue_open=EXCLUDED.overdue_open, focus_breakdown=EXCLUDED.focus_breakdown,
  computed_at=EXCLUDED.computed_at`
	_, err = r.db.Pool.Exec(ctx, q,
		s.UserID, s.WeekStart.UTC(), s.ScopeTableID, s.CompletedTasks, s.OnTimeRate, s.MedianCycleTimeDays,
		s.WIPCount, s.OverdueOpen, raw, s.ComputedAt.UTC(),
	)
	return err
}

// Get loads a stored snapshot.
func (r *SnapshotRepo) Get(ctx context.Context, userID uuid.UUID, weekStart time.Time, scopeTableID string) (*model.WeeklySnapshot, error) {
	const q = `
SELECT user_id, week_start, scope_table_id, completed_tasks, on_time_rate, median_cycle_time_days,
       wip_count, overdue_open, focus_breakdown, computed_at
FROM weekly_snapshots WHERE user_id=$1 AND week_start=$2 AND scope_table_id=$3`
	var (
		s   model.WeeklySnapshot
		raw []byte
	)
	err := r.db.Pool.QueryRow(ctx, q, userID, weekStart.UTC(), scopeTableID).Scan(
		&s.UserID, &s.WeekStart, &s.ScopeTableID, &s.CompletedTasks, &s.OnTimeRate, &s.MedianCycleTimeDays,
		&s.WIPCount, &s.OverdueOpen, &raw, &s.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	s.FocusBreakdown = map[string]int{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.FocusBreakdown); err != nil {
			return nil, fmt.Errorf("decode focus breakdown: %w", err)
		}
	}
	return &s, nil
}
