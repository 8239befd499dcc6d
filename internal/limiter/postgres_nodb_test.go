package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

/************ fake pgx ************/
type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	selErr        error
	selBlockedTil *time.Time

	hitErr         error
	hitCount       int
	hitWindowStart time.Time

	execSQL []string
	execErr error
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "SELECT blocked_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.selErr != nil {
				return f.selErr
			}
			if f.selBlockedTil != nil {
				*(dest[0].(*time.Time)) = *f.selBlockedTil
			} else {
				*(dest[0].(*time.Time)) = time.Time{} // 'epoch'
			}
			return nil
		}}
	case strings.Contains(sql, "RETURNING hit_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.hitErr != nil {
				return f.hitErr
			}
			*(dest[0].(*int)) = f.hitCount
			*(dest[1].(*time.Time)) = f.hitWindowStart
			return nil
		}}
	default:
		return fakeRow{scan: func(dest ...any) error { return errors.New("unexpected query") }}
	}
}

func TestAllow_FirstHit_Allows(t *testing.T) {
	fp := &fakePool{selErr: pgx.ErrNoRows, hitCount: 1, hitWindowStart: time.Now()}
	l := NewPG(fp, time.Minute, 3)

	ok, dur, err := l.Allow(context.Background(), "k")
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow first: ok=%v dur=%v err=%v", ok, dur, err)
	}
	if len(fp.execSQL) != 0 {
		t.Fatalf("no block expected, exec=%v", fp.execSQL)
	}
}

func TestAllow_BlockedUntilFuture(t *testing.T) {
	fut := time.Now().Add(10 * time.Minute)
	fp := &fakePool{selBlockedTil: &fut}
	l := NewPG(fp, time.Minute, 3)

	ok, dur, err := l.Allow(context.Background(), "k")
	if err != nil || ok || dur <= 0 {
		t.Fatalf("Allow blocked: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestAllow_OverBudget_Blocks(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 30, 0, time.UTC)
	fp := &fakePool{selErr: pgx.ErrNoRows, hitCount: 4, hitWindowStart: now.Add(-30 * time.Second)}
	l := NewPG(fp, time.Minute, 3)
	l.now = func() time.Time { return now }

	ok, dur, err := l.Allow(context.Background(), "k")
	if err != nil || ok || dur != 30*time.Second {
		t.Fatalf("Allow over budget: ok=%v dur=%v err=%v", ok, dur, err)
	}
	if len(fp.execSQL) != 1 || !strings.Contains(fp.execSQL[0], "UPDATE sync_limiter SET blocked_until") {
		t.Fatalf("must update blocked_until, exec=%v", fp.execSQL)
	}
}

func TestAllow_PastBlock_CountsHit(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	fp := &fakePool{selBlockedTil: &past, hitCount: 2, hitWindowStart: time.Now()}
	l := NewPG(fp, time.Minute, 3)

	ok, _, err := l.Allow(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("Allow past: ok=%v err=%v", ok, err)
	}
}

func TestAllow_DBError_Propagates(t *testing.T) {
	fp := &fakePool{selErr: errors.New("db boom")}
	l := NewPG(fp, time.Minute, 3)

	ok, _, err := l.Allow(context.Background(), "k")
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}

	fp = &fakePool{selErr: pgx.ErrNoRows, hitErr: errors.New("returning boom")}
	l = NewPG(fp, time.Minute, 3)
	if _, _, err := l.Allow(context.Background(), "k"); err == nil {
		t.Fatalf("want error from returning hit_count")
	}
}

func TestReset(t *testing.T) {
	fp := &fakePool{}
	l := NewPG(fp, time.Minute, 3)

	if err := l.Reset(context.Background(), "k"); err != nil {
		t.Fatalf("reset err: %v", err)
	}
	if len(fp.execSQL) != 1 || !strings.Contains(fp.execSQL[0], "INSERT INTO sync_limiter") {
		t.Fatalf("unexpected exec: %v", fp.execSQL)
	}

	fp = &fakePool{execErr: errors.New("exec fail")}
	l = NewPG(fp, time.Minute, 3)
	if err := l.Reset(context.Background(), "k"); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestSyncKey(t *testing.T) {
	if got := SyncKey("u", "s"); got != "sync:u:s" {
		t.Fatalf("SyncKey=%q", got)
	}
}
