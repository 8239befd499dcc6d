package postgres

import (
	"context"
	"errors"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// CredentialRepo implements CredentialRepository using PostgreSQL.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Create inserts a new credential row.
func (r *CredentialRepo) Create(ctx context.Context, c *model.Credential) error {
	const q = `
INSERT INTO credentials (source_id, user_id, source_type, payload_enc, iv)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, c.SourceID, c.UserID, string(c.SourceType), []byte(c.EncryptedPayload), c.IV)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a credential by source ID.
func (r *CredentialRepo) Get(ctx context.Context, sourceID uuid.UUID) (*model.Credential, error) {
	const q = `
SELECT source_id, user_id, source_type, payload_enc, iv, created_at, updated_at
FROM credentials WHERE source_id=$1`
	c, err := scanCredential(r.db.Pool.QueryRow(ctx, q, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListByUser returns all credentials of a user ordered by creation time.
func (r *CredentialRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Credential, error) {
	const q = `
SELECT source_id, user_id, source_type, payload_enc, iv, created_at, updated_at
FROM credentials WHERE user_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdatePayload replaces the sealed payload, e.g. after an OAuth token refresh.
func (r *CredentialRepo) UpdatePayload(ctx context.Context, sourceID uuid.UUID, payload model.EncryptedBlob, iv []byte) error {
	const q = `UPDATE credentials SET payload_enc=$2, iv=$3, updated_at=now() WHERE source_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, sourceID, []byte(payload), iv)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a credential. Descriptors keep their mapping and checkpoint.
func (r *CredentialRepo) Delete(ctx context.Context, sourceID uuid.UUID) error {
	const q = `DELETE FROM credentials WHERE source_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, sourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanCredential(row pgx.Row) (*model.Credential, error) {
	var (
		c    model.Credential
		typ  string
		blob []byte
	)
	if err := row.Scan(&c.SourceID, &c.UserID, &typ, &blob, &c.IV, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.SourceType = model.SourceType(typ)
	c.EncryptedPayload = model.EncryptedBlob(blob)
	return &c, nil
}
