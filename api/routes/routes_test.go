package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metricsim/metricsim/api/models"
	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	jobs       []string
	jobsErr    error
	listParams *db.ListExecutionsParams
	listResult *db.PagedResult
	listErr    error
}

func (f *fakeProvider) WithDB(func(*sql.DB))                         {}
func (f *fakeProvider) Insert(context.Context, []db.Execution) error { return nil }
func (f *fakeProvider) Close() error                                 { return nil }

func (f *fakeProvider) ListJobs(context.Context) ([]string, error) {
	return f.jobs, f.jobsErr
}

func (f *fakeProvider) ListExecutions(_ context.Context, params db.ListExecutionsParams) (*db.PagedResult, error) {
	f.listParams = &params
	return f.listResult, f.listErr
}

func (f *fakeProvider) DeleteExecutionsOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newTestRoutes(t *testing.T, provider db.Provider) (*routes, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	r, err := NewRoutes(
		WithDBProvider(provider),
		WithConfig(config.DefaultConfig),
		WithHandlers(reg, false),
	)
	require.NoError(t, err)
	return r, reg
}

func TestNewRoutes_RequiresHandlers(t *testing.T) {
	_, err := NewRoutes(WithDBProvider(&fakeProvider{}))
	require.Error(t, err)
}

func TestWelcome(t *testing.T) {
	r, _ := newTestRoutes(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var welcome models.Welcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &welcome))
	assert.Contains(t, welcome.Message, "Prometheus metrics")
}

func TestWelcome_UnknownPathIs404(t *testing.T) {
	r, _ := newTestRoutes(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRoutes(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServiceMetrics_ExposesRegistry(t *testing.T) {
	provider := &fakeProvider{}
	reg := prometheus.NewRegistry()
	c := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "sim_test_total",
		Help: "test counter",
	})
	c.Add(3)

	r, err := NewRoutes(
		WithDBProvider(provider),
		WithConfig(config.DefaultConfig),
		WithHandlers(reg, false),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sim_test_total 3")
}

func TestJobs(t *testing.T) {
	provider := &fakeProvider{jobs: []string{"long_running_job", "short_running_job"}}
	r, _ := newTestRoutes(t, provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.JobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"long_running_job", "short_running_job"}, resp.Jobs)
}

func TestJobs_DisabledRecording(t *testing.T) {
	r, _ := newTestRoutes(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExecutions_PassesParams(t *testing.T) {
	provider := &fakeProvider{
		listResult: &db.PagedResult{Total: 1, TotalPages: 1, Data: []db.ExecutionRecord{}},
	}
	r, _ := newTestRoutes(t, provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/executions?job=short_running_job&kind=job&page=2&pageSize=50&sortBy=duration&sortOrder=asc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, provider.listParams)
	assert.Equal(t, "short_running_job", provider.listParams.Job)
	assert.Equal(t, "job", provider.listParams.Kind)
	assert.Equal(t, 2, provider.listParams.Page)
	assert.Equal(t, 50, provider.listParams.PageSize)
	assert.Equal(t, "duration", provider.listParams.SortBy)
	assert.Equal(t, "asc", provider.listParams.SortOrder)
}

func TestExecutions_InvalidParamsAre400(t *testing.T) {
	provider := &fakeProvider{
		listErr: db.ValidationError("sortBy", "unknown column"),
	}
	r, _ := newTestRoutes(t, provider)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/executions?sortBy=bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfig_Sanitized(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Provider: "postgresql",
			PostgreSQL: config.PostgreSQLConfig{
				User:     "admin",
				Password: "hunter2",
			},
		},
	}

	reg := prometheus.NewRegistry()
	r, err := NewRoutes(
		WithDBProvider(&fakeProvider{}),
		WithConfig(cfg),
		WithHandlers(reg, false),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "admin")
}
