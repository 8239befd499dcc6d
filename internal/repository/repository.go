// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CredentialRepository stores encrypted source credentials.
type CredentialRepository interface {
	// Create inserts a new credential.
	Create(ctx context.Context, c *model.Credential) error
	// Get loads a credential by source ID.
	Get(ctx context.Context, sourceID uuid.UUID) (*model.Credential, error)
	// ListByUser returns all credentials of a user (payloads included, still encrypted).
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Credential, error)
	// UpdatePayload replaces the encrypted payload of a credential.
	UpdatePayload(ctx context.Context, sourceID uuid.UUID, payload model.EncryptedBlob, iv []byte) error
	// Delete removes a credential.
	Delete(ctx context.Context, sourceID uuid.UUID) error
}

// DescriptorRepository stores the remote tables a user selected, with mapping and checkpoint.
type DescriptorRepository interface {
	// Upsert inserts a descriptor or re-selects an existing one, keeping mapping and checkpoint.
	Upsert(ctx context.Context, d *model.Descriptor) error
	// Get loads one descriptor of a user.
	Get(ctx context.Context, userID uuid.UUID, id string) (*model.Descriptor, error)
	// ListByUser returns all descriptors of a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Descriptor, error)
	// SetSelected toggles the selected flag.
	SetSelected(ctx context.Context, userID uuid.UUID, id string, selected bool) error
	// DeselectBySource clears the selected flag of every descriptor of a source.
	DeselectBySource(ctx context.Context, sourceID uuid.UUID) error
	// SetMapping replaces the property mapping.
	SetMapping(ctx context.Context, userID uuid.UUID, id string, m model.PropertyMapping) error
	// UpdateCheckpoint advances the checkpoint; it never moves backward.
	UpdateCheckpoint(ctx context.Context, userID uuid.UUID, id string, ts time.Time) error
}

// TaskRepository is the normalized task store.
type TaskRepository interface {
	// UpsertTasks inserts or replaces tasks by (table_id, record_id) and returns the number written.
	UpsertTasks(ctx context.Context, tasks []model.Task) (int, error)
	// ListByUser returns every task of a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error)
	// ListByTable returns the tasks of one table of a user.
	ListByTable(ctx context.Context, userID uuid.UUID, tableID string) ([]model.Task, error)
}

// SnapshotRepository stores weekly KPI snapshots.
type SnapshotRepository interface {
	// Upsert writes a snapshot keyed by (user, week start, scope table).
	Upsert(ctx context.Context, s *model.WeeklySnapshot) error
	// Get loads a stored snapshot.
	Get(ctx context.Context, userID uuid.UUID, weekStart time.Time, scopeTableID string) (*model.WeeklySnapshot, error)
}

// DirectoryRepository stores assignee identities observed in sources.
type DirectoryRepository interface {
	// UpsertEntries inserts or refreshes directory entries.
	UpsertEntries(ctx context.Context, entries []model.DirectoryEntry) error
}
