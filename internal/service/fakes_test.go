package service

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/and161185/taskpulse/internal/crypto"
	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/repository"
	"github.com/gofrs/uuid/v5"
)

func newSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer(bytes.Repeat([]byte{7}, crypto.KeyLen))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

type memCreds struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Credential
}

var _ repository.CredentialRepository = (*memCreds)(nil)

func newMemCreds() *memCreds { return &memCreds{rows: map[uuid.UUID]model.Credential{}} }

func (m *memCreds) Create(_ context.Context, c *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.SourceID]; ok {
		return errs.ErrAlreadyExists
	}
	m.rows[c.SourceID] = *c
	return nil
}
func (m *memCreds) Get(_ context.Context, sourceID uuid.UUID) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[sourceID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &c, nil
}
func (m *memCreds) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credential
	for _, c := range m.rows {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *memCreds) UpdatePayload(_ context.Context, sourceID uuid.UUID, payload model.EncryptedBlob, iv []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[sourceID]
	if !ok {
		return errs.ErrNotFound
	}
	c.EncryptedPayload, c.IV = payload, iv
	m.rows[sourceID] = c
	return nil
}
func (m *memCreds) Delete(_ context.Context, sourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[sourceID]; !ok {
		return errs.ErrNotFound
	}
	delete(m.rows, sourceID)
	return nil
}

type memDescs struct {
	mu   sync.Mutex
	rows map[string]model.Descriptor // user/id
}

var _ repository.DescriptorRepository = (*memDescs)(nil)

func newMemDescs() *memDescs { return &memDescs{rows: map[string]model.Descriptor{}} }

func descKey(userID uuid.UUID, id string) string { return userID.String() + "/" + id }

func (m *memDescs) Upsert(_ context.Context, d *model.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := descKey(d.UserID, d.ID)
	if cur, ok := m.rows[k]; ok {
		cur.SourceID, cur.DisplayName, cur.Selected = d.SourceID, d.DisplayName, d.Selected
		m.rows[k] = cur
		return nil
	}
	m.rows[k] = *d
	return nil
}
func (m *memDescs) Get(_ context.Context, userID uuid.UUID, id string) (*model.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[descKey(userID, id)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &d, nil
}
func (m *memDescs) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Descriptor
	for _, d := range m.rows {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (m *memDescs) SetSelected(_ context.Context, userID uuid.UUID, id string, selected bool) error {
	return m.update(userID, id, func(d *model.Descriptor) { d.Selected = selected })
}
func (m *memDescs) DeselectBySource(_ context.Context, sourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, d := range m.rows {
		if d.SourceID == sourceID {
			d.Selected = false
			m.rows[k] = d
		}
	}
	return nil
}
func (m *memDescs) SetMapping(_ context.Context, userID uuid.UUID, id string, mp model.PropertyMapping) error {
	return m.update(userID, id, func(d *model.Descriptor) { d.Mapping = &mp })
}
func (m *memDescs) UpdateCheckpoint(_ context.Context, userID uuid.UUID, id string, ts time.Time) error {
	return m.update(userID, id, func(d *model.Descriptor) {
		if d.LastModifiedCheckpoint == nil || ts.After(*d.LastModifiedCheckpoint) {
			d.LastModifiedCheckpoint = &ts
		}
	})
}
func (m *memDescs) update(userID uuid.UUID, id string, fn func(*model.Descriptor)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := descKey(userID, id)
	d, ok := m.rows[k]
	if !ok {
		return errs.ErrNotFound
	}
	fn(&d)
	m.rows[k] = d
	return nil
}

type memTasks struct {
	mu        sync.Mutex
	rows      map[string]model.Task // user/table/record
	calls     int
	upsertErr error
}

var _ repository.TaskRepository = (*memTasks)(nil)

func newMemTasks() *memTasks { return &memTasks{rows: map[string]model.Task{}} }

func (m *memTasks) UpsertTasks(_ context.Context, tasks []model.Task) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	for _, t := range tasks {
		m.rows[t.UserID.String()+"/"+t.TableID+"/"+t.RecordID] = t
	}
	return len(tasks), nil
}
func (m *memTasks) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Task, error) {
	return m.list(func(t model.Task) bool { return t.UserID == userID }), nil
}
func (m *memTasks) ListByTable(_ context.Context, userID uuid.UUID, tableID string) ([]model.Task, error) {
	return m.list(func(t model.Task) bool { return t.UserID == userID && t.TableID == tableID }), nil
}
func (m *memTasks) list(keep func(model.Task) bool) []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Task
	for _, t := range m.rows {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableID != out[j].TableID {
			return out[i].TableID < out[j].TableID
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out
}

type memDirectory struct {
	mu      sync.Mutex
	entries []model.DirectoryEntry
	err     error
}

var _ repository.DirectoryRepository = (*memDirectory)(nil)

func (m *memDirectory) UpsertEntries(_ context.Context, entries []model.DirectoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entries...)
	return nil
}

type memSnapshots struct {
	mu   sync.Mutex
	rows map[string]model.WeeklySnapshot
	puts int
}

var _ repository.SnapshotRepository = (*memSnapshots)(nil)

func newMemSnapshots() *memSnapshots { return &memSnapshots{rows: map[string]model.WeeklySnapshot{}} }

func snapKey(userID uuid.UUID, week time.Time, scope string) string {
	return userID.String() + "/" + week.UTC().Format(time.DateOnly) + "/" + scope
}

func (m *memSnapshots) Upsert(_ context.Context, s *model.WeeklySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.rows[snapKey(s.UserID, s.WeekStart, s.ScopeTableID)] = *s
	return nil
}
func (m *memSnapshots) Get(_ context.Context, userID uuid.UUID, weekStart time.Time, scope string) (*model.WeeklySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[snapKey(userID, weekStart, scope)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, v)
	return p.err
}
