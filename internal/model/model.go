// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// SourceType names a vendor a credential belongs to.
type SourceType string

const (
	SourceNotion         SourceType = "notion"
	SourceGoogleCalendar SourceType = "google_calendar"
)

// Valid reports whether t is a supported source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceNotion, SourceGoogleCalendar:
		return true
	}
	return false
}

// SyncMode selects between full re-ingestion and checkpointed ingestion.
type SyncMode string

const (
	SyncBackfill    SyncMode = "backfill"
	SyncIncremental SyncMode = "incremental"
)

// ParseSyncMode returns the mode for s; empty input means incremental.
func ParseSyncMode(s string) (SyncMode, bool) {
	switch SyncMode(s) {
	case "", SyncIncremental:
		return SyncIncremental, true
	case SyncBackfill:
		return SyncBackfill, true
	}
	return "", false
}

// Tokens collects an issued session token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// EncryptedBlob is an opaque AEAD ciphertext.
type EncryptedBlob []byte

// Credential is the encrypted OAuth/API credential of one connected source.
type Credential struct {
	SourceID         uuid.UUID
	UserID           uuid.UUID
	SourceType       SourceType
	EncryptedPayload EncryptedBlob // AEAD(payload JSON)
	IV               []byte        // AEAD nonce
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Secret is the decrypted payload of a Credential. The JSON shape matches oauth2.Token.
type Secret struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// PropertyMapping translates vendor property names into canonical task fields.
// Any field may be empty; unmapped fields resolve to nil canonical values.
type PropertyMapping struct {
	Title       string `json:"title,omitempty"`
	Status      string `json:"status,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Estimate    string `json:"estimate,omitempty"`
	Tags        string `json:"tags,omitempty"`
	Parent      string `json:"parent,omitempty"`

	ActiveStatusValues    []string `json:"activeStatusValues,omitempty"`
	CompletedStatusValues []string `json:"completedStatusValues,omitempty"`
	BacklogStatusValues   []string `json:"backlogStatusValues,omitempty"`
}

// Descriptor is a remote table (Notion database, calendar) a user selected for sync.
type Descriptor struct {
	ID                     string // vendor collection id
	UserID                 uuid.UUID
	SourceID               uuid.UUID
	DisplayName            string
	Selected               bool
	Mapping                *PropertyMapping
	LastModifiedCheckpoint *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Status buckets derived from the mapping's status value lists.
const (
	BucketActive    = "active"
	BucketCompleted = "completed"
	BucketBacklog   = "backlog"
)

// Task is the canonical, mapping-independent task record. Identity is (TableID, RecordID).
type Task struct {
	RecordID       string
	TableID        string
	UserID         uuid.UUID
	Title          *string
	Status         *string
	StatusBucket   string
	AssigneeIDs    []string
	CreatedAt      *time.Time
	DueAt          *time.Time
	CompletedAt    *time.Time
	Priority       *string
	Estimate       *float64
	Tags           []string
	LastModifiedAt *time.Time
	Archived       bool
	ParentTaskID   *string
}

// WeeklySnapshot is the persisted weekly execution rollup.
// ScopeTableID is empty when the snapshot covers all tables of the user.
type WeeklySnapshot struct {
	UserID              uuid.UUID
	WeekStart           time.Time
	ScopeTableID        string
	CompletedTasks      int
	OnTimeRate          float64
	MedianCycleTimeDays *float64
	WIPCount            int
	OverdueOpen         int
	FocusBreakdown      map[string]int
	ComputedAt          time.Time
}

// DirectoryEntry is an assignee identity observed in a source.
type DirectoryEntry struct {
	SourceType  SourceType
	ExternalID  string
	OwnerUserID uuid.UUID
	Name        string
	Email       string
	UpdatedAt   time.Time
}

// TableResult reports the outcome of one table within a sync.
type TableResult struct {
	TableID    string
	Upserted   int
	Pages      int
	Checkpoint *time.Time
	Err        error // nil on success; the table was skipped otherwise
}

// SyncResult is the outcome of one TriggerSync call.
type SyncResult struct {
	SourceID      uuid.UUID
	Mode          SyncMode
	UpsertedCount int
	Tables        []TableResult
}
