// Package events publishes domain events (sync completed, KPI computed) to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects, relative to the configured prefix.
const (
	SubjectSyncCompleted = "sync.completed"
	SubjectKPIComputed   = "kpi.computed"
)

// SyncCompleted is published after every finished sync call.
type SyncCompleted struct {
	UserID        string    `json:"user_id"`
	SourceID      string    `json:"source_id"`
	SourceType    string    `json:"source_type"`
	Mode          string    `json:"mode"`
	UpsertedCount int       `json:"upserted_count"`
	Tables        int       `json:"tables"`
	SkippedTables int       `json:"skipped_tables"`
	FinishedAt    time.Time `json:"finished_at"`
}

// KPIComputed is published after a weekly snapshot was stored.
type KPIComputed struct {
	UserID         string    `json:"user_id"`
	WeekStart      time.Time `json:"week_start"`
	ScopeTableID   string    `json:"scope_table_id,omitempty"`
	CompletedTasks int       `json:"completed_tasks"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Publisher delivers an event payload to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATS publishes JSON payloads on core NATS subjects under a prefix.
type NATS struct {
	nc     natsConn
	prefix string
}

var _ Publisher = (*NATS)(nil)

// NewNATS returns a publisher over an established connection.
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	return &NATS{nc: nc, prefix: prefix}
}

// Connect dials NATS with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("taskpulse"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Publish marshals v and publishes it to prefix.subject.
func (p *NATS) Publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.subject(subject), data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATS) subject(s string) string {
	if p.prefix == "" {
		return s
	}
	return p.prefix + "." + s
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }
