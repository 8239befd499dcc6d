package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskCols = `table_id, record_id, user_id, title, status, status_bucket, assignee_ids, created_at, due_at, completed_at, priority, estimate, tags, last_modified_at, archived, parent_task_id`

// UpsertTasks writes the batch in one transaction; every field is replaced on conflict.
func (r *TaskRepo) UpsertTasks(ctx context.Context, tasks []model.Task) (n int, err error) {
	if len(tasks) == 0 {
		return 0, nil
	}
	const q = `
INSERT INTO tasks (` + taskCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (user_id, table_id, record_id) DO UPDATE SET
  title=EXCLUDED.title, status=EXCLUDED.status, status_bucket=EXCLUDED.status_bucket,
  assignee_ids=EXCLUDED.assignee_ids, created_at=EXCLUDED.created_at, due_at=EXCLUDED.due_at,
  completed_at=EXCLUDED.completed_at, priority=EXCLUDED.priority, estimate=EXCLUDED.estimate,
  tags=EXCLUDED.tags, last_modified_at=EXCLUDED.last_modified_at, archived=EXCLUDED.archived,
  parent_task_id=EXCLUDED.parent_task_id`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		for i := range tasks {
			t := &tasks[i]
			tag, err := tx.Exec(ctx, q,
				t.TableID, t.RecordID, t.UserID, t.Title, t.Status, t.StatusBucket,
				nonNil(t.AssigneeIDs), t.CreatedAt, t.DueAt, t.CompletedAt, t.Priority, t.Estimate,
				nonNil(t.Tags), t.LastModifiedAt, t.Archived, t.ParentTaskID,
			)
			if err != nil {
				return fmt.Errorf("task[%d] %s: %w", i, t.RecordID, err)
			}
			n += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ListByUser returns all tasks of a user.
func (r *TaskRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	q := `SELECT ` + taskCols + ` FROM tasks WHERE user_id=$1 ORDER BY table_id, record_id`
	return r.list(ctx, q, userID)
}

// ListByTable returns the tasks of one table of a user.
func (r *TaskRepo) ListByTable(ctx context.Context, userID uuid.UUID, tableID string) ([]model.Task, error) {
	q := `SELECT ` + taskCols + ` FROM tasks WHERE user_id=$1 AND table_id=$2 ORDER BY record_id`
	return r.list(ctx, q, userID, tableID)
}

func (r *TaskRepo) list(ctx context.Context, q string, args ...any) ([]model.Task, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.TableID, &t.RecordID, &t.UserID, &t.Title, &t.Status, &t.StatusBucket,
			&t.AssigneeIDs, &t.CreatedAt, &t.DueAt, &t.CompletedAt, &t.Priority, &t.Estimate,
			&t.Tags, &t.LastModifiedAt, &t.Archived, &t.ParentTaskID,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
