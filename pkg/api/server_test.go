package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/pkg/api/middleware"
	"benchrun/pkg/auth"
	"benchrun/pkg/coordination/local"
	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
	"benchrun/pkg/storage"
	"benchrun/pkg/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFacade struct {
	summary *models.Summary
	err     error
	got     []string
}

func (f *stubFacade) RunSource(_ context.Context, text string, _ *runconfig.Config, args ...string) (*models.Summary, error) {
	f.got = append([]string{"source", text}, args...)
	return f.summary, f.err
}

func (f *stubFacade) RunURL(_ context.Context, url string, _ *runconfig.Config, args ...string) (*models.Summary, error) {
	f.got = append([]string{"url", url}, args...)
	return f.summary, f.err
}

type testAPI struct {
	server  *Server
	store   *memory.Store
	queue   *memory.Queue
	coord   *local.Coordinator
	facade  *stubFacade
	reports *storage.LocalReportStore
}

func newTestAPI(t *testing.T, mutate ...func(*Config)) *testAPI {
	t.Helper()
	reports, err := storage.NewLocalReportStore(t.TempDir())
	require.NoError(t, err)

	a := &testAPI{
		store:   memory.NewStore(),
		queue:   memory.NewQueue(32, time.Millisecond),
		coord:   local.NewCoordinator(),
		facade:  &stubFacade{},
		reports: reports,
	}
	cfg := Config{
		Requests:    a.store,
		Schedules:   a.store,
		Summaries:   a.store,
		Reports:     reports,
		Queue:       a.queue,
		Coordinator: a.coord,
		Election:    a.coord.NewElection("scheduler"),
		Facade:      a.facade,
		RateLimit:   middleware.RateLimiterConfig{RequestsPerMinute: 6000, BurstSize: 1000},
		HealthChecks: map[string]HealthCheck{
			"queue": func(context.Context) error { return nil },
		},
		ArtifactsPath:  t.TempDir(),
		AllowAnonymous: true,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	a.server = NewServer(cfg)
	t.Cleanup(func() { a.server.stop() })
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, w)["status"])

	a = newTestAPI(t, func(c *Config) {
		c.HealthChecks = map[string]HealthCheck{"postgres": func(context.Context) error { return errors.New("down") }}
	})
	w = a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "down"}, body["dependencies"])
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodGet, "/api/v1/runs", nil)
	w := a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "benchrun_http_requests_total")
}

func TestCreateRunQueuesRequest(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodPost, "/api/v1/runs", map[string]any{
		"kind":         "URL",
		"url":          "https://example.com/bench_test.go",
		"args":         []string{"--count", "2"},
		"max_attempts": 50,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	created := decode[models.RunRequest](t, w)
	assert.Equal(t, models.RunPending, created.Status)
	assert.Equal(t, maxAttemptsLimit, created.MaxAttempts)

	_, queued, err := a.queue.Pop(context.Background(), "g", "c")
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, created.ID, queued.ID)
	assert.Equal(t, models.Args{"--count", "2"}, queued.Args)

	w = a.do(t, http.MethodGet, "/api/v1/runs/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	run := decode[RunResponse](t, w)
	assert.Equal(t, created.ID, run.ID)
	assert.Empty(t, run.Summaries)
}

func TestCreateRunRejectsInvalidTargets(t *testing.T) {
	a := newTestAPI(t)
	for _, body := range []map[string]any{
		{"url": "https://x/y"},
		{"kind": "URL", "url": "ftp://x/y"},
		{"kind": "SOURCE"},
		{"kind": "SHELL", "source": "rm"},
	} {
		w := a.do(t, http.MethodPost, "/api/v1/runs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Zero(t, a.queue.Len())
}

func TestRunSyncOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		summary *models.Summary
		err     error
		code    int
		status  string
	}{
		{name: "succeeded", summary: &models.Summary{Title: "T", Reports: models.Reports{{Benchmark: "BenchmarkX"}}}, code: http.StatusOK, status: "SUCCEEDED"},
		{name: "empty", code: http.StatusOK, status: "EMPTY"},
		{name: "declaration error", summary: models.NothingToRun("benchmark T is invalid: x", "", ""), code: http.StatusUnprocessableEntity, status: "INVALID"},
		{name: "unsupported", err: fmt.Errorf("run by source: %w", models.ErrUnsupported), code: http.StatusNotImplemented},
		{name: "failure", err: errors.New("toolchain missing"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			a.facade.summary, a.facade.err = tt.summary, tt.err

			w := a.do(t, http.MethodPost, "/api/v1/runs/sync", map[string]any{
				"kind": "SOURCE", "source": "package b", "args": []string{"--list"},
			})
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.status != "" {
				assert.Equal(t, tt.status, decode[map[string]any](t, w)["status"])
			}
			assert.Equal(t, []string{"source", "package b", "--list"}, a.facade.got)
		})
	}
}

func TestRunSyncDisabledWithoutFacade(t *testing.T) {
	a := newTestAPI(t, func(c *Config) { c.Facade = nil })
	w := a.do(t, http.MethodPost, "/api/v1/runs/sync", map[string]any{"kind": "SOURCE", "source": "package b"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestGetRunNotFoundAndBadID(t *testing.T) {
	a := newTestAPI(t)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/runs/nope", nil).Code)
}

func TestSummaryReport(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	sum := &models.Summary{ID: uuid.New(), Title: "T"}
	ref, err := a.reports.Store(ctx, sum.ID.String(), "report.json", []byte(`{"title":"T"}`))
	require.NoError(t, err)
	sum.ReportURI = ref
	require.NoError(t, a.store.SaveSummary(ctx, sum))

	w := a.do(t, http.MethodGet, "/api/v1/summaries/"+sum.ID.String()+"/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"title":"T"}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/summaries/"+sum.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T", decode[models.Summary](t, w).Title)

	bare := &models.Summary{ID: uuid.New(), Title: "bare"}
	require.NoError(t, a.store.SaveSummary(ctx, bare))
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/summaries/"+bare.ID.String()+"/report", nil).Code)
}

func TestScheduleLifecycle(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"name": "nightly", "cron": "0 3 * * *", "kind": "SOURCE", "source": "package b", "max_attempts": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sched := decode[models.Schedule](t, w)
	require.NotNil(t, sched.NextRunAt)
	assert.True(t, sched.NextRunAt.After(time.Now()))
	assert.Equal(t, 3, sched.MaxAttempts)

	path := "/api/v1/schedules/" + sched.ID.String()
	w = a.do(t, http.MethodPatch, path, map[string]any{"status": "PAUSED", "cron": "*/5 * * * *"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Schedule](t, w)
	assert.Equal(t, models.SchedulePaused, updated.Status)
	assert.Equal(t, "*/5 * * * *", updated.Cron)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPatch, path, map[string]any{"cron": "every day"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPatch, path, map[string]any{"status": "ARCHIVED"}).Code)

	w = a.do(t, http.MethodPost, path+"/trigger", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	_, queued, err := a.queue.Pop(context.Background(), "g", "c")
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, sched.ID, *queued.ScheduleID)
	assert.Equal(t, 3, queued.MaxAttempts)

	w = a.do(t, http.MethodGet, "/api/v1/schedules", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, path, nil).Code)
}

func TestCreateScheduleRejectsBadCron(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"name": "n", "cron": "0 0 0 * * *", "kind": "SOURCE", "source": "package b",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCluster(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	w := a.do(t, http.MethodGet, "/api/v1/cluster/leader", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, a.coord.RegisterNode(ctx, "worker-1", 30))
	require.NoError(t, a.server.election.Campaign(ctx, "scheduler-1"))

	w = a.do(t, http.MethodGet, "/api/v1/cluster/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"worker-1"}, decode[map[string]any](t, w)["nodes"])

	w = a.do(t, http.MethodGet, "/api/v1/cluster/leader", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "scheduler-1", decode[map[string]any](t, w)["leader"])
}

func TestAuthEnforcedRoutes(t *testing.T) {
	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{SecretKey: "k", Issuer: "benchrun"})
	require.NoError(t, err)
	a := newTestAPI(t, func(c *Config) { c.Auth = middleware.AuthConfig{JWTService: jwtSvc} })

	viewer, err := jwtSvc.GenerateToken("v", "viewer", auth.RoleViewer)
	require.NoError(t, err)
	owner, err := jwtSvc.GenerateToken("o", "owner", auth.RoleOperator)
	require.NoError(t, err)
	other, err := jwtSvc.GenerateToken("x", "other", auth.RoleOperator)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/runs", nil, "Authorization", "Bearer "+viewer).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/api/v1/runs",
		map[string]any{"kind": "SOURCE", "source": "package b"}, "Authorization", "Bearer "+viewer).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/api/v1/apikeys?owner_id=o", nil, "Authorization", "Bearer "+owner).Code)

	w := a.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"name": "mine", "cron": "0 * * * *", "kind": "SOURCE", "source": "package b", "owner_id": "spoofed",
	}, "Authorization", "Bearer "+owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sched := decode[models.Schedule](t, w)
	assert.Equal(t, "o", sched.OwnerID)

	path := "/api/v1/schedules/" + sched.ID.String()
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodDelete, path, nil, "Authorization", "Bearer "+other).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodDelete, path, nil, "Authorization", "Bearer "+owner).Code)
}

func TestOperatorRoutesRequireAuthOrOptIn(t *testing.T) {
	a := newTestAPI(t, func(c *Config) { c.AllowAnonymous = false })

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/runs"},
		{http.MethodPost, "/api/v1/runs/sync"},
		{http.MethodPost, "/api/v1/schedules"},
	} {
		w := a.do(t, r.method, r.path, map[string]any{"kind": "source", "source": "package x"})
		assert.Equal(t, http.StatusForbidden, w.Code, r.path)
		assert.Contains(t, w.Body.String(), "ALLOW_ANONYMOUS")
	}
	assert.Empty(t, a.facade.got)
	assert.Zero(t, a.queue.Len())

	// read routes stay open
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/runs", nil).Code)
}

func TestAPIKeysNotConfigured(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodPost, "/api/v1/apikeys", map[string]any{"name": "ci", "owner_id": "o", "role": "viewer"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"/", 50, 0},
		{"/?limit=500&offset=-3", 200, 0},
		{"/?limit=x", 50, 0},
		{"/?limit=0&offset=7", 50, 7},
		{"/?limit=20&offset=40", 20, 40},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tt.query, nil)
			limit, offset := pagination(c)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
		})
	}
}
