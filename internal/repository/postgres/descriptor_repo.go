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

// DescriptorRepo implements DescriptorRepository using PostgreSQL.
type DescriptorRepo struct{ db *DB }

// NewDescriptorRepo constructs a descriptor repository.
func NewDescriptorRepo(db *DB) *DescriptorRepo { return &DescriptorRepo{db: db} }

const descriptorCols = `id, user_id, source_id, display_name, selected, property_mapping, last_modified_checkpoint, created_at, updated_at`

// Upsert inserts a descriptor or re-selects it; mapping and checkpoint survive reselection.
func (r *DescriptorRepo) Upsert(ctx context.Context, d *model.Descriptor) error {
	const q = `
INSERT INTO descriptors (id, user_id, source_id, display_name, selected)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, id) DO UPDATE
SET source_id=EXCLUDED.source_id, display_name=EXCLUDED.display_name, selected=EXCLUDED.selected, updated_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.UserID, d.SourceID, d.DisplayName, d.Selected)
	return err
}

// Get selects one descriptor of a user.
func (r *DescriptorRepo) Get(ctx context.Context, userID uuid.UUID, id string) (*model.Descriptor, error) {
	q := `SELECT ` + descriptorCols + ` FROM descriptors WHERE user_id=$1 AND id=$2`
	d, err := scanDescriptor(r.db.Pool.QueryRow(ctx, q, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByUser returns the descriptors of a user ordered by id.
func (r *DescriptorRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Descriptor, error) {
	q := `SELECT ` + descriptorCols + ` FROM descriptors WHERE user_id=$1 ORDER BY id ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// SetSelected toggles the selected flag of one descriptor.
func (r *DescriptorRepo) SetSelected(ctx context.Context, userID uuid.UUID, id string, selected bool) error {
	const q = `UPDATE descriptors SET selected=$3, updated_at=now() WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, selected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeselectBySource clears the selected flag of all descriptors of a source.
func (r *DescriptorRepo) DeselectBySource(ctx context.Context, sourceID uuid.UUID) error {
	const q = `UPDATE descriptors SET selected=false, updated_at=now() WHERE source_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, sourceID)
	return err
}

// SetMapping stores the property mapping as JSONB.
func (r *DescriptorRepo) SetMapping(ctx context.Context, userID uuid.UUID, id string, m model.PropertyMapping) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	const q = `UPDATE descriptors SET property_mapping=$3, updated_at=now() WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateCheckpoint advances the checkpoint with GREATEST so it never regresses.
func (r *DescriptorRepo) UpdateCheckpoint(ctx context.Context, userID uuid.UUID, id string, ts time.Time) error {
	const q = `
UPDATE descriptors
SET last_modified_checkpoint = GREATEST(COALESCE(last_modified_checkpoint, $3), $3), updated_at=now()
WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, ts.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanDescriptor(row pgx.Row) (*model.Descriptor, error) {
	var (
		d   model.Descriptor
		raw []byte
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.SourceID, &d.DisplayName, &d.Selected, &raw,
		&d.LastModifiedCheckpoint, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 && string(raw) != "null" {
		var m model.PropertyMapping
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("descriptor %s: decode mapping: %w", d.ID, err)
		}
		d.Mapping = &m
	}
	return &d, nil
}
