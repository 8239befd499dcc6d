// Package convert maps domain types to the JSON wire format of the HTTP API.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TimeLayout is the wire format of every timestamp: ISO-8601, UTC, second precision.
const TimeLayout = "2006-01-02T15:04:05Z"

// --- helpers ---

// Time formats t in UTC; the zero time gives "".
func Time(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// TimePtr formats an optional timestamp; nil stays nil.
func TimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := Time(*t)
	return &s
}

func strs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- requests (client -> server) ---

// PutSourceRequest stores a credential for a vendor.
type PutSourceRequest struct {
	SourceType string       `json:"source_type"`
	Payload    model.Secret `json:"payload"`
}

// SelectTableRequest selects a remote table for sync.
type SelectTableRequest struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	DisplayName string `json:"display_name"`
}

// FromSelectTableRequest validates the request and parses the source ID.
func FromSelectTableRequest(in SelectTableRequest) (uuid.UUID, error) {
	if strings.TrimSpace(in.ID) == "" {
		return uuid.Nil, fmt.Errorf("%w: id is required", errs.ErrValidation)
	}
	id, err := ParseID(in.SourceID)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ParseID parses a UUID path or body parameter.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", errs.ErrValidation, s)
	}
	return id, nil
}

// ParseWeek accepts an RFC3339 timestamp or a YYYY-MM-DD date; empty means "now" (nil).
func ParseWeek(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: week %q is neither RFC3339 nor YYYY-MM-DD", errs.ErrValidation, s)
}

// --- responses (server -> client) ---

// Source is a connected credential without its payload.
type Source struct {
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// ToSources hides payloads of stored credentials.
func ToSources(cs []model.Credential) []Source {
	out := make([]Source, 0, len(cs))
	for _, c := range cs {
		out = append(out, Source{
			SourceID:   c.SourceID.String(),
			SourceType: string(c.SourceType),
			CreatedAt:  Time(c.CreatedAt),
			UpdatedAt:  Time(c.UpdatedAt),
		})
	}
	return out
}

// Table is a descriptor on the wire.
type Table struct {
	ID                     string                 `json:"id"`
	SourceID               string                 `json:"source_id"`
	DisplayName            string                 `json:"display_name"`
	Selected               bool                   `json:"selected"`
	Mapping                *model.PropertyMapping `json:"mapping"`
	LastModifiedCheckpoint *string                `json:"last_modified_checkpoint"`
}

// ToTable converts a descriptor.
func ToTable(d model.Descriptor) Table {
	return Table{
		ID:                     d.ID,
		SourceID:               d.SourceID.String(),
		DisplayName:            d.DisplayName,
		Selected:               d.Selected,
		Mapping:                d.Mapping,
		LastModifiedCheckpoint: TimePtr(d.LastModifiedCheckpoint),
	}
}

// ToTables converts descriptors.
func ToTables(ds []model.Descriptor) []Table {
	out := make([]Table, 0, len(ds))
	for _, d := range ds {
		out = append(out, ToTable(d))
	}
	return out
}

// Task is a canonical task on the wire. Absent values are null, lists are never null.
type Task struct {
	RecordID       string   `json:"record_id"`
	TableID        string   `json:"table_id"`
	Title          *string  `json:"title"`
	Status         *string  `json:"status"`
	StatusBucket   string   `json:"status_bucket,omitempty"`
	AssigneeIDs    []string `json:"assignee_ids"`
	CreatedAt      *string  `json:"created_at"`
	DueAt          *string  `json:"due_at"`
	CompletedAt    *string  `json:"completed_at"`
	Priority       *string  `json:"priority"`
	Estimate       *float64 `json:"estimate"`
	Tags           []string `json:"tags"`
	LastModifiedAt *string  `json:"last_modified_at"`
	Archived       bool     `json:"archived"`
	ParentTaskID   *string  `json:"parent_task_id"`
}

// ToTasks converts canonical tasks.
func ToTasks(ts []model.Task) []Task {
	out := make([]Task, 0, len(ts))
	for _, t := range ts {
		out = append(out, Task{
			RecordID:       t.RecordID,
			TableID:        t.TableID,
			Title:          t.Title,
			Status:         t.Status,
			StatusBucket:   t.StatusBucket,
			AssigneeIDs:    strs(t.AssigneeIDs),
			CreatedAt:      TimePtr(t.CreatedAt),
			DueAt:          TimePtr(t.DueAt),
			CompletedAt:    TimePtr(t.CompletedAt),
			Priority:       t.Priority,
			Estimate:       t.Estimate,
			Tags:           strs(t.Tags),
			LastModifiedAt: TimePtr(t.LastModifiedAt),
			Archived:       t.Archived,
			ParentTaskID:   t.ParentTaskID,
		})
	}
	return out
}

// TableOutcome reports one table of a sync.
type TableOutcome struct {
	TableID    string  `json:"table_id"`
	Upserted   int     `json:"upserted"`
	Pages      int     `json:"pages"`
	Checkpoint *string `json:"checkpoint"`
	Error      string  `json:"error,omitempty"`
}

// SyncResult is the response of a sync trigger.
type SyncResult struct {
	SourceID      string         `json:"source_id"`
	Mode          string         `json:"mode"`
	UpsertedCount int            `json:"upserted_count"`
	Tables        []TableOutcome `json:"tables"`
}

// ToSyncResult converts a sync outcome; table errors become messages.
func ToSyncResult(r model.SyncResult) SyncResult {
	out := SyncResult{
		SourceID:      r.SourceID.String(),
		Mode:          string(r.Mode),
		UpsertedCount: r.UpsertedCount,
		Tables:        make([]TableOutcome, 0, len(r.Tables)),
	}
	for _, t := range r.Tables {
		o := TableOutcome{
			TableID:    t.TableID,
			Upserted:   t.Upserted,
			Pages:      t.Pages,
			Checkpoint: TimePtr(t.Checkpoint),
		}
		if t.Err != nil {
			o.Error = t.Err.Error()
		}
		out.Tables = append(out.Tables, o)
	}
	return out
}

// WeeklySnapshot is a KPI snapshot on the wire.
type WeeklySnapshot struct {
	WeekStart           string         `json:"week_start"`
	ScopeTableID        *string        `json:"scope_table_id"`
	CompletedTasks      int            `json:"completed_tasks"`
	OnTimeRate          float64        `json:"on_time_rate"`
	MedianCycleTimeDays *float64       `json:"median_cycle_time_days"`
	WIPCount            int            `json:"wip_count"`
	OverdueOpen         int            `json:"overdue_open"`
	FocusBreakdown      map[string]int `json:"focus_breakdown"`
	ComputedAt          string         `json:"computed_at"`
}

// ToWeeklySnapshot converts a snapshot; an empty scope is null.
func ToWeeklySnapshot(s model.WeeklySnapshot) WeeklySnapshot {
	out := WeeklySnapshot{
		WeekStart:           Time(s.WeekStart),
		CompletedTasks:      s.CompletedTasks,
		OnTimeRate:          s.OnTimeRate,
		MedianCycleTimeDays: s.MedianCycleTimeDays,
		WIPCount:            s.WIPCount,
		OverdueOpen:         s.OverdueOpen,
		FocusBreakdown:      s.FocusBreakdown,
		ComputedAt:          Time(s.ComputedAt),
	}
	if out.FocusBreakdown == nil {
		out.FocusBreakdown = map[string]int{}
	}
	if s.ScopeTableID != "" {
		scope := s.ScopeTableID
		out.ScopeTableID = &scope
	}
	return out
}
