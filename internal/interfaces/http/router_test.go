package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/lupa/internal/interfaces/http/handlers"
	"github.com/turtacn/lupa/internal/interfaces/http/middleware"
	"github.com/turtacn/lupa/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	svc     extraction.Service
	metrics *prometheus.AppMetrics
	logger  *testutil.MockLogger
}

func newTestEnv(t *testing.T, mutate func(*RouterConfig)) *testEnv {
	t.Helper()
	svc := extraction.NewService(extraction.StaticSource(testutil.GreetingModel()), extraction.Config{}, nil)
	require.NoError(t, svc.Reload(context.Background()))

	collector, err := prometheus.NewMetricsCollector(prometheus.MetricsConfig{}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)
	logger := testutil.NewMockLogger()

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = []string{"*"}
	cfg := RouterConfig{
		MatchHandler: handlers.NewMatchHandler(svc, 0),
		ModelHandler: handlers.NewModelHandler(svc),
		HealthHandler: handlers.NewHealthHandler("test",
			handlers.NewChecker("model", func(context.Context) error {
				if !svc.Ready() {
					return extraction.ErrNoModel
				}
				return nil
			})),
		Logger:         logger,
		Recorder:       metrics,
		CORS:           &cors,
		Logging:        middleware.DefaultLoggingConfig(),
		MetricsPath:    "/metrics",
		MetricsHandler: collector.Handler(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testEnv{router: NewRouter(cfg), svc: svc, metrics: metrics, logger: logger}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRouter_Match(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/match", `{"text":"red car"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	var res extraction.MatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	var got []string
	for _, e := range res.Entities {
		got = append(got, e.Type)
	}
	assert.ElementsMatch(t, []string{"ride", "color", "vehicle"}, got)
}

func TestRouter_ModelRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/v1/model", "/api/v1/model/warnings", "/api/v1/model/patterns"} {
		w := env.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w := env.do(http.MethodPost, "/api/v1/model/reload", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", "").Code)

	env.do(http.MethodPost, "/api/v1/match", `{"text":"hi"}`)
	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/api/v1/match"`)
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/api/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "COMMON_005")
}

func TestRouter_BodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *RouterConfig) { c.MaxBodySize = 16 })
	w := env.do(http.MethodPost, "/api/v1/match", `{"text":"hello there, this body is too long"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_RateLimitAppliesToAPIOnly(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	env := newTestEnv(t, func(c *RouterConfig) { c.RateLimiter = limiter })

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/match", `{"text":"hi"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/v1/match", `{"text":"hi"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "").Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/match", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
