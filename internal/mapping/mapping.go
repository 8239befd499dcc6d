// Package mapping turns vendor records into canonical tasks through a property mapping.
package mapping

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Validate checks that the status value lists do not overlap.
func Validate(m model.PropertyMapping) error {
	seen := map[string]string{}
	lists := []struct {
		bucket string
		values []string
	}{
		{model.BucketActive, m.ActiveStatusValues},
		{model.BucketCompleted, m.CompletedStatusValues},
		{model.BucketBacklog, m.BacklogStatusValues},
	}
	for _, l := range lists {
		for _, v := range l.values {
			if prev, ok := seen[v]; ok && prev != l.bucket {
				return fmt.Errorf("%w: status %q is both %s and %s", errs.ErrInvalidMapping, v, prev, l.bucket)
			}
			seen[v] = l.bucket
		}
	}
	return nil
}

// Normalize maps one record into a canonical task. Unmapped or absent properties stay nil.
func Normalize(rec model.Record, m model.PropertyMapping, tableID string, userID uuid.UUID) model.Task {
	t := model.Task{
		RecordID:       rec.ID,
		TableID:        tableID,
		UserID:         userID,
		CreatedAt:      rec.CreatedAt,
		LastModifiedAt: rec.LastModifiedAt,
		Archived:       rec.Archived,
	}

	t.Title = asText(lookup(rec, m.Title))
	t.Status = asText(lookup(rec, m.Status))
	if t.Status != nil {
		t.StatusBucket = Bucket(*t.Status, m)
	}
	t.AssigneeIDs = asIDs(lookup(rec, m.Assignee))
	t.DueAt = asDate(lookup(rec, m.DueDate))
	t.CompletedAt = asDate(lookup(rec, m.CompletedAt))
	t.Priority = asText(lookup(rec, m.Priority))
	t.Estimate = asNumber(lookup(rec, m.Estimate))
	t.Tags = asList(lookup(rec, m.Tags))

	if p := asIDs(lookup(rec, m.Parent)); len(p) > 0 {
		t.ParentTaskID = &p[0]
	} else if rec.ParentID != "" {
		parent := rec.ParentID
		t.ParentTaskID = &parent
	}
	return t
}

// Bucket returns the status bucket of a status value, or "" when no list contains it.
func Bucket(status string, m model.PropertyMapping) string {
	switch {
	case slices.Contains(m.CompletedStatusValues, status):
		return model.BucketCompleted
	case slices.Contains(m.ActiveStatusValues, status):
		return model.BucketActive
	case slices.Contains(m.BacklogStatusValues, status):
		return model.BucketBacklog
	}
	return ""
}

// Assignees extracts directory entries from the mapped assignee property of a record.
func Assignees(rec model.Record, m model.PropertyMapping, st model.SourceType, owner uuid.UUID) []model.DirectoryEntry {
	v := lookup(rec, m.Assignee)
	if v.Kind != model.KindPeople {
		return nil
	}
	out := make([]model.DirectoryEntry, 0, len(v.People))
	for _, p := range v.People {
		if p.ID == "" {
			continue
		}
		out = append(out, model.DirectoryEntry{
			SourceType:  st,
			ExternalID:  p.ID,
			OwnerUserID: owner,
			Name:        p.Name,
			Email:       p.Email,
		})
	}
	return out
}

// MaxModified returns the latest LastModifiedAt across records, or nil.
func MaxModified(recs []model.Record) *time.Time {
	var latest *time.Time
	for i := range recs {
		ts := recs[i].LastModifiedAt
		if ts != nil && (latest == nil || ts.After(*latest)) {
			latest = ts
		}
	}
	return latest
}

func lookup(rec model.Record, name string) model.Value {
	if name == "" || rec.Properties == nil {
		return model.Value{}
	}
	return rec.Properties[name]
}

func asText(v model.Value) *string {
	var s string
	switch v.Kind {
	case model.KindText:
		s = strings.TrimSpace(v.Text)
	case model.KindOptions:
		if len(v.Options) > 0 {
			s = v.Options[0]
		}
	case model.KindNumber:
		s = strconv.FormatFloat(v.Number, 'f', -1, 64)
	case model.KindCheckbox:
		s = strconv.FormatBool(v.Checked)
	case model.KindPeople:
		if len(v.People) > 0 {
			s = v.People[0].Name
		}
	}
	if s == "" {
		return nil
	}
	return &s
}

func asDate(v model.Value) *time.Time {
	switch v.Kind {
	case model.KindDate:
		if v.Date == nil {
			return nil
		}
		t := v.Date.UTC()
		return &t
	case model.KindText:
		return parseDate(strings.TrimSpace(v.Text))
	}
	return nil
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func asNumber(v model.Value) *float64 {
	switch v.Kind {
	case model.KindNumber:
		n := v.Number
		return &n
	case model.KindText:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func asIDs(v model.Value) []string {
	switch v.Kind {
	case model.KindPeople:
		ids := make([]string, 0, len(v.People))
		for _, p := range v.People {
			if p.ID != "" {
				ids = append(ids, p.ID)
			}
		}
		return ids
	case model.KindRelation:
		return append([]string(nil), v.Relations...)
	case model.KindOptions:
		return append([]string(nil), v.Options...)
	case model.KindText:
		return splitList(v.Text)
	}
	return nil
}

func asList(v model.Value) []string {
	switch v.Kind {
	case model.KindOptions:
		return append([]string(nil), v.Options...)
	case model.KindText:
		return splitList(v.Text)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
