package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/events"
	"github.com/and161185/taskpulse/internal/limiter"
	"github.com/and161185/taskpulse/internal/mapping"
	"github.com/and161185/taskpulse/internal/metrics"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/repository"
	"github.com/and161185/taskpulse/internal/source"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// SyncService pulls records from connected sources into the task store.
type SyncService interface {
	// TriggerSync syncs every selected table of one source and reports per-table outcomes.
	TriggerSync(ctx context.Context, userID, sourceID uuid.UUID, mode model.SyncMode) (model.SyncResult, error)
}

// SyncDeps collects the collaborators of the sync engine.
type SyncDeps struct {
	Credentials CredentialService
	Descriptors repository.DescriptorRepository
	Tasks       repository.TaskRepository
	Directory   repository.DirectoryRepository
	Sources     *source.Registry
	Trigger     limiter.Limiter
	Throttle    limiter.Throttle
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	PageRetries uint64
	RetryBase   time.Duration
	MaxBatch    int
}

type SyncServiceImpl struct {
	SyncDeps
	locks *tableLocks
	now   func() time.Time
}

// NewSyncService constructs SyncService. Optional deps fall back to no-op implementations.
func NewSyncService(d SyncDeps) *SyncServiceImpl {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RetryBase <= 0 {
		d.RetryBase = 500 * time.Millisecond
	}
	if d.MaxBatch <= 0 {
		d.MaxBatch = 1000
	}
	return &SyncServiceImpl{SyncDeps: d, locks: newTableLocks(), now: time.Now}
}

// TriggerSync runs the sync of one source:
//   - the trigger limiter is consulted first
//   - the credential is decrypted and all selected tables must have a mapping before any fetch
//   - tables are synced in order; a failing table is skipped, an invalid credential aborts the call
func (s *SyncServiceImpl) TriggerSync(ctx context.Context, userID, sourceID uuid.UUID, mode model.SyncMode) (model.SyncResult, error) {
	res := model.SyncResult{SourceID: sourceID, Mode: mode}
	if userID == uuid.Nil || sourceID == uuid.Nil {
		return res, fmt.Errorf("%w: empty userID/sourceID", errs.ErrValidation)
	}
	if mode != model.SyncBackfill && mode != model.SyncIncremental {
		return res, fmt.Errorf("%w: unknown sync mode %q", errs.ErrValidation, mode)
	}

	if s.Trigger != nil {
		ok, retryAfter, err := s.Trigger.Allow(ctx, limiter.SyncKey(userID.String(), sourceID.String()))
		if err != nil {
			return res, fmt.Errorf("trigger limiter: %w", err)
		}
		if !ok {
			return res, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retryAfter.Round(time.Second))
		}
	}

	secret, cred, err := s.Credentials.Secret(ctx, userID, sourceID)
	if err != nil {
		return res, err
	}
	st := string(cred.SourceType)
	log := s.Logger.With(
		zap.String("user_id", userID.String()),
		zap.String("source_id", sourceID.String()),
		zap.String("source_type", st),
		zap.String("mode", string(mode)),
	)

	all, err := s.Descriptors.ListByUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list descriptors: %w", err)
	}
	var tables []model.Descriptor
	for _, d := range all {
		if !d.Selected || d.SourceID != sourceID {
			continue
		}
		if d.Mapping == nil {
			return res, fmt.Errorf("%w: table %s", errs.ErrMissingMapping, d.ID)
		}
		tables = append(tables, d)
	}

	src, err := s.Sources.Open(ctx, cred.SourceType, secret)
	if err != nil {
		return res, err
	}

	start := s.now()
	skipped := 0
	for _, d := range tables {
		tr := s.syncTable(ctx, log, src, cred.SourceType, d, mode)
		res.Tables = append(res.Tables, tr)
		res.UpsertedCount += tr.Upserted
		if tr.Err == nil {
			s.Metrics.SyncTables.WithLabelValues("ok").Inc()
			continue
		}
		if errors.Is(tr.Err, errs.ErrInvalidCredential) {
			s.Metrics.SyncRuns.WithLabelValues(st, "error").Inc()
			log.Warn("sync aborted: credential rejected by vendor", zap.String("table_id", d.ID), zap.Error(tr.Err))
			return res, tr.Err
		}
		if ctx.Err() != nil {
			s.Metrics.SyncRuns.WithLabelValues(st, "error").Inc()
			return res, ctx.Err()
		}
		skipped++
		s.Metrics.SyncTables.WithLabelValues("skipped").Inc()
		log.Warn("table skipped", zap.String("table_id", d.ID), zap.Error(tr.Err))
	}

	outcome := "ok"
	if skipped > 0 {
		outcome = "partial"
	}
	s.Metrics.SyncRuns.WithLabelValues(st, outcome).Inc()
	s.Metrics.SyncDuration.WithLabelValues(st).Observe(s.now().Sub(start).Seconds())
	log.Info("sync finished",
		zap.Int("tables", len(tables)),
		zap.Int("skipped", skipped),
		zap.Int("upserted", res.UpsertedCount),
	)

	ev := events.SyncCompleted{
		UserID:        userID.String(),
		SourceID:      sourceID.String(),
		SourceType:    st,
		Mode:          string(mode),
		UpsertedCount: res.UpsertedCount,
		Tables:        len(tables),
		SkippedTables: skipped,
		FinishedAt:    s.now().UTC(),
	}
	if err := s.Events.Publish(ctx, events.SubjectSyncCompleted, ev); err != nil {
		log.Warn("publish sync.completed failed", zap.Error(err))
	}
	return res, nil
}

func (s *SyncServiceImpl) syncTable(ctx context.Context, log *zap.Logger, src source.Source, st model.SourceType, d model.Descriptor, mode model.SyncMode) model.TableResult {
	tr := model.TableResult{TableID: d.ID, Checkpoint: d.LastModifiedCheckpoint}

	unlock, ok := s.locks.tryLock(d.UserID.String() + "/" + d.ID)
	if !ok {
		tr.Err = fmt.Errorf("%w: table %s", errs.ErrSyncInProgress, d.ID)
		return tr
	}
	defer unlock()

	var filter source.Filter
	if mode == model.SyncIncremental && d.LastModifiedCheckpoint != nil {
		cp := *d.LastModifiedCheckpoint
		filter.ModifiedAfter = &cp
	}

	cursor := ""
	for {
		page, err := s.fetchPage(ctx, src, st, d.ID, filter, cursor)
		if err != nil {
			tr.Err = fmt.Errorf("table %s page %d: %w", d.ID, tr.Pages+1, err)
			return tr
		}
		tr.Pages++
		s.Metrics.Pages.WithLabelValues(string(st)).Inc()

		if err := s.storePage(ctx, log, st, d, page.Records, &tr); err != nil {
			tr.Err = fmt.Errorf("table %s: %w", d.ID, err)
			return tr
		}

		if !page.HasMore || page.NextCursor == "" {
			return tr
		}
		if page.NextCursor == cursor {
			tr.Err = fmt.Errorf("table %s: %w: cursor %q did not advance", d.ID, source.ErrPermanent, cursor)
			return tr
		}
		cursor = page.NextCursor
	}
}

// fetchPage reads one page through the throttle, retrying transient failures with exponential backoff.
func (s *SyncServiceImpl) fetchPage(ctx context.Context, src source.Source, st model.SourceType, tableID string, filter source.Filter, cursor string) (source.Page, error) {
	var (
		page    source.Page
		attempt int
	)
	b := retry.WithMaxRetries(s.PageRetries, retry.NewExponential(s.RetryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.Metrics.PageRetries.WithLabelValues(string(st)).Inc()
		}
		if s.Throttle != nil {
			if err := s.Throttle.Wait(ctx, string(st)); err != nil {
				return err
			}
		}
		p, err := src.ListPage(ctx, tableID, filter, cursor)
		if err != nil {
			if source.Retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		page = p
		return nil
	})
	return page, err
}

// storePage upserts the normalized records in batches and advances the checkpoint to the running max.
func (s *SyncServiceImpl) storePage(ctx context.Context, log *zap.Logger, st model.SourceType, d model.Descriptor, recs []model.Record, tr *model.TableResult) error {
	if len(recs) == 0 {
		return nil
	}
	tasks := make([]model.Task, 0, len(recs))
	var people []model.DirectoryEntry
	for _, rec := range recs {
		tasks = append(tasks, mapping.Normalize(rec, *d.Mapping, d.ID, d.UserID))
		people = append(people, mapping.Assignees(rec, *d.Mapping, st, d.UserID)...)
	}

	for i := 0; i < len(tasks); i += s.MaxBatch {
		end := min(i+s.MaxBatch, len(tasks))
		n, err := s.Tasks.UpsertTasks(ctx, tasks[i:end])
		if err != nil {
			return fmt.Errorf("upsert tasks: %w", err)
		}
		tr.Upserted += n
		s.Metrics.RecordsUpserted.WithLabelValues(string(st)).Add(float64(n))
	}

	if s.Directory != nil && len(people) > 0 {
		if err := s.Directory.UpsertEntries(ctx, people); err != nil {
			log.Warn("directory upsert failed", zap.String("table_id", d.ID), zap.Error(err))
		}
	}

	pageMax := mapping.MaxModified(recs)
	if pageMax == nil || (tr.Checkpoint != nil && !pageMax.After(*tr.Checkpoint)) {
		return nil
	}
	if err := s.Descriptors.UpdateCheckpoint(ctx, d.UserID, d.ID, *pageMax); err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	cp := *pageMax
	tr.Checkpoint = &cp
	return nil
}

// tableLocks rejects concurrent syncs of the same table within one process.
type tableLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newTableLocks() *tableLocks {
	return &tableLocks{held: make(map[string]struct{})}
}

func (l *tableLocks) tryLock(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true
}
