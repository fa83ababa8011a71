package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/validation"
	"tucomercio/internal/models"
	"tucomercio/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]auth.Principal

func (s stubVerifier) Verify(raw string) (auth.Principal, error) {
	p, ok := s[raw]
	if !ok {
		return auth.Principal{}, errors.NewUnauthenticatedError("invalid token")
	}
	return p, nil
}

var testTokens = stubVerifier{
	"user-token":  {UserID: "user-1", Email: "ana@example.com", Role: models.RoleUser},
	"admin-token": {UserID: "admin-1", Email: "root@example.com", Role: models.RoleSuperAdmin},
}

type planStore struct {
	mu    sync.Mutex
	plans []models.Plan
	panic bool
}

func (s *planStore) ListPlans(_ context.Context, activeOnly bool) ([]models.Plan, error) {
	if s.panic {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Plan{}
	for _, p := range s.plans {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *planStore) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, errors.NewNotFoundError("plan", id)
}

func (s *planStore) CreatePlan(_ context.Context, p *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, *p)
	return nil
}

func (s *planStore) UpdatePlan(context.Context, *models.Plan) error { return nil }

func (s *planStore) DeactivatePlan(context.Context, string) error { return nil }

func newTestRouter(t *testing.T, store *planStore, mutate func(*Options)) http.Handler {
	t.Helper()
	opts := Options{
		Services:  Services{Plans: services.NewPlans(store)},
		Verifier:  testTokens,
		Validator: validation.NewValidator(),
		Server: config.ServerConfig{
			AllowedOrigins: []string{"https://tucomercio.uy"},
			RateLimit:      config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		},
		Logger: logger.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewRouter(opts)
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) errors.ErrorCode {
	t.Helper()
	var env struct {
		Error errors.StandardError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

func TestRouter_Authorization(t *testing.T) {
	router := newTestRouter(t, &planStore{}, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
		code   errors.ErrorCode
	}{
		{"anonymous on user route", http.MethodGet, "/api/v1/me", "", "", http.StatusUnauthorized, errors.ErrCodeUnauthenticated},
		{"unknown token", http.MethodGet, "/api/v1/plans", "forged", "", http.StatusUnauthorized, errors.ErrCodeUnauthenticated},
		{"user on admin route", http.MethodGet, "/api/v1/admin/stats", "user-token", "", http.StatusForbidden, errors.ErrCodeForbidden},
		{"anonymous on admin route", http.MethodPost, "/api/v1/admin/plans", "", `{"name":"pro"}`, http.StatusUnauthorized, errors.ErrCodeUnauthenticated},
		{"review out of range", http.MethodPut, "/api/v1/businesses/b1/reviews", "user-token", `{"rating":9}`, http.StatusBadRequest, errors.ErrCodeValidationFailed},
		{"review not json", http.MethodPut, "/api/v1/businesses/b1/reviews", "user-token", `{rating`, http.StatusBadRequest, errors.ErrCodeValidationFailed},
		{"unknown profile field", http.MethodPatch, "/api/v1/me", "user-token", `{"role":"superadmin"}`, http.StatusBadRequest, errors.ErrCodeValidationFailed},
		{"broadcast bad audience", http.MethodPost, "/api/v1/admin/notifications/broadcast", "admin-token", `{"audience":"everyone","title":"hi"}`, http.StatusBadRequest, errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestRouter_Plans(t *testing.T) {
	store := &planStore{plans: []models.Plan{
		{ID: "p1", Name: "free", Active: true},
		{ID: "p2", Name: "legacy", Active: false},
	}}
	router := newTestRouter(t, store, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/plans", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []models.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	assert.Len(t, plans, 1)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, router, http.MethodGet, "/api/v1/admin/plans", "admin-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	assert.Len(t, plans, 2)

	rec = do(t, router, http.MethodPost, "/api/v1/admin/plans", "admin-token", `{"name":" pro ","priceUyu":1290,"maxImages":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "pro", created.Name)
	assert.True(t, created.Active)
	assert.Equal(t, 1290.0, created.PriceUYU)
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	router := newTestRouter(t, &planStore{panic: true}, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/plans", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errors.ErrCodeInternal, errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, &planStore{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/plans", nil)
	req.Header.Set("Origin", "https://tucomercio.uy")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://tucomercio.uy", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimitPerCaller(t *testing.T) {
	router := newTestRouter(t, &planStore{}, func(o *Options) {
		o.Server.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/plans", "user-token", "").Code)
	}
	rec := do(t, router, http.MethodGet, "/api/v1/plans", "user-token", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, errors.ErrCodeRateLimited, errorCode(t, rec))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// A different caller has its own bucket.
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/plans", "admin-token", "").Code)
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 1, logger.NewNoOpLogger())
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("ip:10.0.0.1"))
	assert.False(t, rl.allow("ip:10.0.0.1"))

	now = now.Add(5 * time.Minute)
	assert.True(t, rl.allow("ip:10.0.0.2"))

	now = now.Add(limiterIdle - time.Minute)
	assert.Equal(t, 1, rl.sweep())
	assert.Len(t, rl.limiters, 1)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "ip:192.0.2.7", clientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", clientKey(req))

	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: "u-9"}))
	assert.Equal(t, "user:u-9", clientKey(req))
}

func TestHealthAndReady(t *testing.T) {
	router := newTestRouter(t, &planStore{}, func(o *Options) {
		o.Checks = map[string]Check{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return fmt.Errorf("connection refused") },
		}
	})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "", "").Code)

	rec := do(t, router, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}
