package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/platform/metrics"
	"github.com/phrazzld/sitegen-api/internal/service"
	"github.com/phrazzld/sitegen-api/internal/service/auth"
	"github.com/phrazzld/sitegen-api/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statsOnlyJobService answers Stats; other methods are not reached in these tests.
type statsOnlyJobService struct {
	service.JobService
	stats task.Stats
}

func (s *statsOnlyJobService) Stats(context.Context) (task.Stats, error) {
	return s.stats, nil
}

func newTestJWT(t *testing.T) auth.JWTService {
	t.Helper()
	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:     "router-test-secret-0123456789abcdefgh",
		TokenLifetime: time.Hour,
	})
	require.NoError(t, err)
	return jwtService
}

func serve(t *testing.T, h http.Handler, method, path, authHeader string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewRouter(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger()
	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg, log)
	recorder.RecordEnqueued(task.JobTypeGenerateWebsite)

	jwtService := newTestJWT(t)
	router := newRouter(routerDeps{
		logger:     log,
		gatherer:   reg,
		jwtService: jwtService,
		jobService: &statsOnlyJobService{stats: task.Stats{Waiting: 3}},
	})

	t.Run("health", func(t *testing.T) {
		resp, body := serve(t, router, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", body)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, body := serve(t, router, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "sitegen_jobs_enqueued_total")
	})

	t.Run("job routes require a token", func(t *testing.T) {
		resp, _ := serve(t, router, http.MethodGet, "/websites/jobs/stats", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("admin reaches stats", func(t *testing.T) {
		token, err := jwtService.GenerateToken(context.Background(), uuid.New(), auth.RoleAdmin)
		require.NoError(t, err)

		resp, body := serve(t, router, http.MethodGet, "/websites/jobs/stats", "Bearer "+token)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.Contains(body, `"waiting":3`), body)
		assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	})
}

func TestNewRouter_WorkerOnly(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger()
	router := newRouter(routerDeps{logger: log, gatherer: prometheus.NewRegistry()})

	resp, _ := serve(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = serve(t, router, http.MethodPost, "/websites/generate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
