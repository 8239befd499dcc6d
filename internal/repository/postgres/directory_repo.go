package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/taskpulse/internal/model"
	"github.com/jackc/pgx/v5"
)

// DirectoryRepo implements DirectoryRepository using PostgreSQL.
type DirectoryRepo struct{ db *DB }

// NewDirectoryRepo constructs a directory repository.
func NewDirectoryRepo(db *DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

// UpsertEntries inserts or refreshes assignee identities. Empty names/emails do not erase known ones.
func (r *DirectoryRepo) UpsertEntries(ctx context.Context, entries []model.DirectoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const q = `
INSERT INTO directory_users (source_type, external_id, owner_user_id, name, email, updated_at)
VALUES ($1,$2,$3,$4,$5,now())
ON CONFLICT (owner_user_id, source_type, external_id) DO UPDATE SET
  name=COALESCE(NULLIF(EXCLUDED.name, ''), directory_users.name),
  email=COALESCE(NULLIF(EXCLUDED.email, ''), directory_users.email),
  updated_at=now()`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for i, e := range entries {
			if _, err := tx.Exec(ctx, q, string(e.SourceType), e.ExternalID, e.OwnerUserID, e.Name, e.Email); err != nil {
				return fmt.Errorf("entry[%d]: %w", i, err)
			}
		}
		return nil
	})
}
