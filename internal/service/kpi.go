package service

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/events"
	"github.com/and161185/taskpulse/internal/kpi"
	"github.com/and161185/taskpulse/internal/metrics"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// KPIService computes and persists weekly execution snapshots.
type KPIService interface {
	// GetWeeklyKPIs computes the snapshot of the week containing weekRef (now when nil).
	// An empty scopeTableID covers every table of the user.
	GetWeeklyKPIs(ctx context.Context, userID uuid.UUID, weekRef *time.Time, scopeTableID string) (*model.WeeklySnapshot, error)
	// ListTasks returns the canonical tasks of a user, optionally limited to one table.
	ListTasks(ctx context.Context, userID uuid.UUID, tableID string) ([]model.Task, error)
}

type KPIServiceImpl struct {
	tasks     repository.TaskRepository
	descs     repository.DescriptorRepository
	snapshots repository.SnapshotRepository
	events    events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewKPIService constructs KPIService. nil publisher, metrics or logger fall back to no-ops.
func NewKPIService(tasks repository.TaskRepository, descs repository.DescriptorRepository, snapshots repository.SnapshotRepository,
	pub events.Publisher, m *metrics.Metrics, log *zap.Logger) *KPIServiceImpl {
	if pub == nil {
		pub = events.Nop{}
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KPIServiceImpl{
		tasks: tasks, descs: descs, snapshots: snapshots,
		events: pub, metrics: m, log: log, now: time.Now,
	}
}

// GetWeeklyKPIs recomputes and upserts the snapshot; calling it twice for the same week is idempotent.
func (s *KPIServiceImpl) GetWeeklyKPIs(ctx context.Context, userID uuid.UUID, weekRef *time.Time, scopeTableID string) (*model.WeeklySnapshot, error) {
	tasks, err := s.ListTasks(ctx, userID, scopeTableID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ref := now
	if weekRef != nil {
		ref = *weekRef
	}
	snap := kpi.Compute(tasks, ref, now)
	snap.UserID = userID
	snap.ScopeTableID = scopeTableID

	if err := s.snapshots.Upsert(ctx, &snap); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	s.metrics.KPIComputations.Inc()

	ev := events.KPIComputed{
		UserID:         userID.String(),
		WeekStart:      snap.WeekStart,
		ScopeTableID:   scopeTableID,
		CompletedTasks: snap.CompletedTasks,
		ComputedAt:     snap.ComputedAt,
	}
	if err := s.events.Publish(ctx, events.SubjectKPIComputed, ev); err != nil {
		s.log.Warn("publish kpi.computed failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return &snap, nil
}

// ListTasks checks the scope table exists before listing.
func (s *KPIServiceImpl) ListTasks(ctx context.Context, userID uuid.UUID, tableID string) ([]model.Task, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	if tableID == "" {
		return s.tasks.ListByUser(ctx, userID)
	}
	if _, err := s.descs.Get(ctx, userID, tableID); err != nil {
		return nil, err
	}
	return s.tasks.ListByTable(ctx, userID, tableID)
}
