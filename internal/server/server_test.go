package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/claimiq/internal/cost"
	"github.com/ZanzyTHEbar/claimiq/internal/database"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/pipeline"
	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

type fakeProcessor struct {
	claims ClaimStore
	err    error
}

func (f *fakeProcessor) Process(ctx context.Context, id string) (*pipeline.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	claim, err := f.claims.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	claim.Status = types.StatusProcessed
	return &pipeline.Result{Claim: claim, Duration: 1500 * time.Millisecond}, nil
}

type fakeVehicles map[string][]string

func (f fakeVehicles) VehicleOptions(context.Context) (map[string][]string, error) {
	return f, nil
}

type testEnv struct {
	server    *Server
	repo      *database.Repository
	processor *fakeProcessor
	health    *resilience.HealthRegistry
	catalog   *cost.Catalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics, err := monitoring.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	repo := database.NewRepository(db)
	env := &testEnv{
		repo:      repo,
		processor: &fakeProcessor{claims: repo},
		health:    resilience.NewHealthRegistry(),
		catalog:   cost.NewCatalog(repo, time.Hour, nil, nil),
	}
	env.server = New(Dependencies{
		Claims:    repo,
		Processor: env.processor,
		Vehicles:  fakeVehicles{"Maruti": {"Swift", "Baleno"}},
		Health:    env.health,
		Pool:      db,
		Pricing:   env.catalog,
		Metrics:   metrics,
		Logger:    monitoring.NewLoggerWithWriter(io.Discard, slog.LevelError),
	}, Config{MaxImages: 5, Version: "test"})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func validRequest() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":        "owner-1",
		"image_refs":      []string{"https://img.example.com/a.jpg"},
		"policy_number":   "POL-12345",
		"vehicle_company": "Maruti",
		"vehicle_model":   "Swift",
		"description":     "minor scratch on the front bumper",
		"coverage": map[string]interface{}{
			"deductible":        1000,
			"policy_valid_till": "2030-12-31",
		},
	}
}

func TestCreateClaim(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/claims", validRequest())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "uploaded", body["status"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	stored, err := env.repo.GetClaim(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "POL-12345", stored.PolicyNumber)
	require.NotNil(t, stored.Coverage.Deductible)
	assert.Equal(t, int64(1000), *stored.Coverage.Deductible)
}

func TestCreateClaim_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		field  string
	}{
		{name: "no images", mutate: func(r map[string]interface{}) { r["image_refs"] = []string{} }, field: "ImageRefs"},
		{name: "too many images", mutate: func(r map[string]interface{}) {
			r["image_refs"] = []string{"1", "2", "3", "4", "5", "6"}
		}, field: "image_refs"},
		{name: "short policy number", mutate: func(r map[string]interface{}) { r["policy_number"] = "P1" }, field: "PolicyNumber"},
		{name: "long description", mutate: func(r map[string]interface{}) {
			r["description"] = strings.Repeat("x", 1001)
		}, field: "Description"},
		{name: "missing owner", mutate: func(r map[string]interface{}) { delete(r, "owner_id") }, field: "OwnerID"},
		{name: "depreciation above 100", mutate: func(r map[string]interface{}) {
			r["coverage"] = map[string]interface{}{"depreciation_pct": 150}
		}, field: "coverage.depreciation_pct"},
		{name: "bad policy date", mutate: func(r map[string]interface{}) {
			r["coverage"] = map[string]interface{}{"policy_valid_till": "next tuesday"}
		}, field: "coverage.policy_valid_till"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := validRequest()
			tt.mutate(req)

			w := env.do(t, http.MethodPost, "/api/v1/claims", req)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			body := decode(t, w)
			assert.Equal(t, "validation", body["category"])
			details, _ := body["details"].(map[string]interface{})
			assert.Contains(t, details, tt.field)

			claims, err := env.repo.ListClaims(context.Background(), 10)
			require.NoError(t, err)
			assert.Empty(t, claims)
		})
	}
}

func TestCreateClaim_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetClaim(t *testing.T) {
	env := newTestEnv(t)
	created := decode(t, env.do(t, http.MethodPost, "/api/v1/claims", validRequest()))

	w := env.do(t, http.MethodGet, "/api/v1/claims/"+created["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created["id"], decode(t, w)["id"])

	w = env.do(t, http.MethodGet, "/api/v1/claims/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["category"])
}

func TestListClaims(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/claims", validRequest())
	env.do(t, http.MethodPost, "/api/v1/claims", validRequest())

	w := env.do(t, http.MethodGet, "/api/v1/claims?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/v1/claims?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessClaim(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		created := decode(t, env.do(t, http.MethodPost, "/api/v1/claims", validRequest()))

		w := env.do(t, http.MethodPost, "/api/v1/claims/"+created["id"].(string)+"/process", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, float64(1500), body["duration_ms"])
		claim, _ := body["claim"].(map[string]interface{})
		assert.Equal(t, "processed", claim["status"])
	})

	tests := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{name: "conflict", err: apperrors.NewConflictError("c1", "processing"), status: http.StatusConflict, category: "conflict"},
		{name: "provider fatal", err: apperrors.NewProviderFatalError("detector", errors.New("down")), status: http.StatusBadGateway, category: "provider_fatal"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, category: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.processor.err = tt.err

			w := env.do(t, http.MethodPost, "/api/v1/claims/c1/process", nil)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.category, body["category"])
			assert.Equal(t, "c1", body["claim_id"])
		})
	}
}

func TestVehicleOptions(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/claims/vehicle-options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"vehicles":{"Maruti":["Swift","Baleno"]}}`, w.Body.String())
}

func TestAnalyticsSummary(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/claims", validRequest())

	w := env.do(t, http.MethodGet, "/api/v1/analytics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total_claims"])
	assert.Equal(t, float64(1), body["pending_claims"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.health.Register("detector")
	env.health.Register("embedder")

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "database")
	assert.Equal(t, map[string]interface{}{"loaded": false, "has_history": false, "zones": float64(0)}, body["pricing"])

	require.NoError(t, env.catalog.Refresh(context.Background()))
	pricing := decode(t, env.do(t, http.MethodGet, "/health", nil))["pricing"].(map[string]interface{})
	assert.Equal(t, true, pricing["loaded"])
	assert.NotEmpty(t, pricing["last_refresh"])

	env.health.SetBreakerState("embedder", resilience.StateOpen)
	body = decode(t, env.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, "degraded", body["status"])

	env.health.SetBreakerState("detector", resilience.StateOpen)
	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "claimiq_http_requests_total")
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t)

	t.Run("security headers and minted request id", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("caller request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-42")
		w := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	})

	t.Run("non json body is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", strings.NewReader("owner_id=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("panics become 500", func(t *testing.T) {
		env.server.engine.GET("/boom", func(*gin.Context) { panic("kaboom") })
		w := env.do(t, http.MethodGet, "/boom", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal", decode(t, w)["category"])
	})
}
