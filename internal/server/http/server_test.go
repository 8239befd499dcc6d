package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/metrics"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/service"
	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCreds struct {
	putType   model.SourceType
	putSecret model.Secret
	putOut    uuid.UUID
	putErr    error
	deleted   uuid.UUID
	delErr    error
	list      []model.Credential
}

var _ service.CredentialService = (*fakeCreds)(nil)

func (f *fakeCreds) Put(_ context.Context, _ uuid.UUID, st model.SourceType, s model.Secret) (uuid.UUID, error) {
	f.putType, f.putSecret = st, s
	return f.putOut, f.putErr
}
func (f *fakeCreds) Rotate(context.Context, uuid.UUID, uuid.UUID, model.Secret) error { return nil }
func (f *fakeCreds) Get(context.Context, uuid.UUID, uuid.UUID) (*model.Credential, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeCreds) Secret(context.Context, uuid.UUID, uuid.UUID) (model.Secret, *model.Credential, error) {
	return model.Secret{}, nil, errs.ErrNotFound
}
func (f *fakeCreds) List(context.Context, uuid.UUID) ([]model.Credential, error) { return f.list, nil }
func (f *fakeCreds) Delete(_ context.Context, _ uuid.UUID, sid uuid.UUID) error {
	f.deleted = sid
	return f.delErr
}

type fakeDescs struct {
	selected   string
	mapping    *model.PropertyMapping
	setErr     error
	deselected string
}

var _ service.DescriptorService = (*fakeDescs)(nil)

func (f *fakeDescs) Select(_ context.Context, uid, sid uuid.UUID, tableID, name string) (*model.Descriptor, error) {
	f.selected = tableID
	return &model.Descriptor{ID: tableID, UserID: uid, SourceID: sid, DisplayName: name, Selected: true}, nil
}
func (f *fakeDescs) Deselect(_ context.Context, _ uuid.UUID, tableID string) error {
	f.deselected = tableID
	return nil
}
func (f *fakeDescs) SetMapping(_ context.Context, _ uuid.UUID, _ string, m model.PropertyMapping) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.mapping = &m
	return nil
}
func (f *fakeDescs) GetMapping(context.Context, uuid.UUID, string) (*model.PropertyMapping, error) {
	if f.mapping == nil {
		return nil, fmt.Errorf("no mapping: %w", errs.ErrNotFound)
	}
	return f.mapping, nil
}
func (f *fakeDescs) List(context.Context, uuid.UUID) ([]model.Descriptor, error) {
	return []model.Descriptor{{ID: "db-1", Selected: true}}, nil
}

type fakeSync struct {
	mode model.SyncMode
	res  model.SyncResult
	err  error
}

var _ service.SyncService = (*fakeSync)(nil)

func (f *fakeSync) TriggerSync(_ context.Context, _, _ uuid.UUID, mode model.SyncMode) (model.SyncResult, error) {
	f.mode = mode
	return f.res, f.err
}

type fakeKPIs struct {
	week  *time.Time
	scope string
	err   error
	tasks []model.Task
}

var _ service.KPIService = (*fakeKPIs)(nil)

func (f *fakeKPIs) GetWeeklyKPIs(_ context.Context, uid uuid.UUID, week *time.Time, scope string) (*model.WeeklySnapshot, error) {
	f.week, f.scope = week, scope
	if f.err != nil {
		return nil, f.err
	}
	return &model.WeeklySnapshot{UserID: uid, WeekStart: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), ScopeTableID: scope, CompletedTasks: 3}, nil
}
func (f *fakeKPIs) ListTasks(context.Context, uuid.UUID, string) ([]model.Task, error) {
	return f.tasks, f.err
}

type testEnv struct {
	srv   *Server
	creds *fakeCreds
	descs *fakeDescs
	sync  *fakeSync
	kpis  *fakeKPIs
	token string
	uid   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sessions := service.NewSessionService([]byte("test-key"), time.Minute)
	env := &testEnv{
		creds: &fakeCreds{},
		descs: &fakeDescs{},
		sync:  &fakeSync{},
		kpis:  &fakeKPIs{},
		uid:   uuid.Must(uuid.NewV4()),
	}
	tk, err := sessions.Issue(env.uid)
	require.NoError(t, err)
	env.token = tk.AccessToken

	reg := prometheus.NewRegistry()
	metrics.New(reg)
	env.srv, err = New(Services{
		Sessions:    sessions,
		Credentials: env.creds,
		Descriptors: env.descs,
		Sync:        env.sync,
		KPIs:        env.kpis,
	}, reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := New(Services{}, nil, nil)
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskpulse_kpi_computations_total")
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tables", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, errorBody(t, rec))
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tables", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/tables", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"db-1"`)
	})
}

func TestPutAndDeleteSource(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.Must(uuid.NewV4())
	env.creds.putOut = sid

	rec := env.do(http.MethodPut, "/api/v1/sources", `{"source_type":"notion","payload":{"access_token":"secret_1"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, fmt.Sprintf(`{"source_id":%q}`, sid), rec.Body.String())
	assert.Equal(t, model.SourceNotion, env.creds.putType)
	assert.Equal(t, "secret_1", env.creds.putSecret.AccessToken)

	env.creds.putErr = fmt.Errorf("%w: unknown source type", errs.ErrValidation)
	rec = env.do(http.MethodPut, "/api/v1/sources", `{"source_type":"jira","payload":{"access_token":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/sources/"+sid.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, sid, env.creds.deleted)

	rec = env.do(http.MethodDelete, "/api/v1/sources/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTablesAndMapping(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.Must(uuid.NewV4())

	rec := env.do(http.MethodPost, "/api/v1/tables", fmt.Sprintf(`{"id":"db-9","source_id":%q,"display_name":"Board"}`, sid))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "db-9", env.descs.selected)
	assert.Contains(t, rec.Body.String(), `"display_name":"Board"`)

	rec = env.do(http.MethodGet, "/api/v1/tables/db-9/mapping", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPut, "/api/v1/tables/db-9/mapping", `{"title":"Name","completedStatusValues":["Done"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.descs.mapping)
	assert.Equal(t, "Name", env.descs.mapping.Title)

	rec = env.do(http.MethodGet, "/api/v1/tables/db-9/mapping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"title":"Name","completedStatusValues":["Done"]}`, rec.Body.String())

	env.descs.setErr = fmt.Errorf("%w: overlap", errs.ErrInvalidMapping)
	rec = env.do(http.MethodPut, "/api/v1/tables/db-9/mapping", `{"title":"Name"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/tables/db-9", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "db-9", env.descs.deselected)
}

func TestSync(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.Must(uuid.NewV4())
	env.sync.res = model.SyncResult{SourceID: sid, Mode: model.SyncBackfill, UpsertedCount: 7,
		Tables: []model.TableResult{{TableID: "db-1", Upserted: 7, Pages: 1}}}

	rec := env.do(http.MethodPost, "/api/v1/sources/"+sid.String()+"/sync?mode=backfill", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.SyncBackfill, env.sync.mode)
	assert.Contains(t, rec.Body.String(), `"upserted_count":7`)

	rec = env.do(http.MethodPost, "/api/v1/sources/"+sid.String()+"/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SyncIncremental, env.sync.mode)

	rec = env.do(http.MethodPost, "/api/v1/sources/"+sid.String()+"/sync?mode=full", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cases := []struct {
		err  error
		code int
	}{
		{errs.ErrRateLimited, http.StatusTooManyRequests},
		{errs.ErrMissingMapping, http.StatusBadRequest},
		{errs.ErrInvalidCredential, http.StatusUnauthorized},
		{errs.ErrSyncInProgress, http.StatusConflict},
		{errs.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("pg: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		env.sync.err = tc.err
		rec = env.do(http.MethodPost, "/api/v1/sources/"+sid.String()+"/sync", "")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		msg := errorBody(t, rec)
		if tc.code == http.StatusInternalServerError {
			assert.Equal(t, "internal error", msg)
		}
	}
}

func TestTasksAndKPIs(t *testing.T) {
	env := newTestEnv(t)
	title := "Ship"
	env.kpis.tasks = []model.Task{{RecordID: "r1", TableID: "db-1", Title: &title}}

	rec := env.do(http.MethodGet, "/api/v1/tasks?table=db-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Ship"`)

	rec = env.do(http.MethodGet, "/api/v1/kpis/weekly?week=2024-01-10&table=db-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.kpis.week)
	assert.True(t, env.kpis.week.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "db-1", env.kpis.scope)
	assert.Contains(t, rec.Body.String(), `"week_start":"2024-01-08T00:00:00Z"`)
	assert.Contains(t, rec.Body.String(), `"completed_tasks":3`)

	rec = env.do(http.MethodGet, "/api/v1/kpis/weekly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.kpis.week)
	assert.Contains(t, rec.Body.String(), `"scope_table_id":null`)

	rec = env.do(http.MethodGet, "/api/v1/kpis/weekly?week=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticate_StoresUserInContext(t *testing.T) {
	sessions := service.NewSessionService([]byte("k"), time.Minute)
	uid := uuid.Must(uuid.NewV4())
	tk, err := sessions.Issue(uid)
	require.NoError(t, err)

	env := newTestEnv(t)
	var got uuid.UUID
	h := Authenticate(sessions)(func(c echo.Context) error {
		got, err = currentUser(c)
		return err
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+tk.AccessToken)
	c := env.srv.echo.NewContext(req, httptest.NewRecorder())
	require.NoError(t, h(c))
	assert.Equal(t, uid, got)
}
