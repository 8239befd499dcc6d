package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed fixed window limiter. Once a key exceeds maxHits inside
// a window it stays blocked until the window ends.
type PG struct {
	pool    pgxQuerier
	window  time.Duration
	maxHits int
	now     func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter over a pool (or a pgxmock/fake querier).
func NewPG(q pgxQuerier, window time.Duration, maxHits int) *PG {
	return &PG{pool: q, window: window, maxHits: maxHits, now: time.Now}
}

// Allow counts one hit for key and reports whether it fits the window budget.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	const sel = `SELECT blocked_until FROM sync_limiter WHERE key=$1`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, sel, key).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return false, 0, err
	}

	const hit = `
INSERT INTO sync_limiter (key, hit_count, blocked_until, window_start, updated_at)
VALUES ($1, 1, 'epoch', now(), now())
ON CONFLICT (key) DO UPDATE
SET
  hit_count = CASE WHEN now() - sync_limiter.window_start > $2::interval THEN 1 ELSE sync_limiter.hit_count + 1 END,
  window_start = CASE WHEN now() - sync_limiter.window_start > $2::interval THEN now() ELSE sync_limiter.window_start END,
  updated_at = now()
RETURNING hit_count, window_start`
	var (
		hits        int
		windowStart time.Time
	)
	if err := l.pool.QueryRow(ctx, hit, key, l.window).Scan(&hits, &windowStart); err != nil {
		return false, 0, err
	}
	if hits <= l.maxHits {
		return true, 0, nil
	}

	until := windowStart.Add(l.window)
	const upd = `UPDATE sync_limiter SET blocked_until=$2 WHERE key=$1`
	if _, err := l.pool.Exec(ctx, upd, key, until); err != nil {
		return false, 0, err
	}
	retry := until.Sub(l.now())
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}

// Reset clears counters and any block for key.
func (l *PG) Reset(ctx context.Context, key string) error {
	const q = `
INSERT INTO sync_limiter (key, hit_count, blocked_until, window_start, updated_at)
VALUES ($1, 0, 'epoch', now(), now())
ON CONFLICT (key)
DO UPDATE SET hit_count=0, blocked_until='epoch', window_start=now(), updated_at=now()`
	_, err := l.pool.Exec(ctx, q, key)
	return err
}
