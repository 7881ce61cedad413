package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/noosphera/internal/api/middleware"
	"github.com/kiranshivaraju/noosphera/internal/auth"
	"github.com/kiranshivaraju/noosphera/internal/credential"
	"github.com/kiranshivaraju/noosphera/internal/metrics"
	"github.com/kiranshivaraju/noosphera/internal/store/storetest"
	"github.com/kiranshivaraju/noosphera/internal/tenant"
	"github.com/kiranshivaraju/noosphera/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testHeader = "X-Noosphera-API-Key"

// --- Mock Authenticator ---

type mockAuthenticator struct {
	ac  *models.AuthContext
	err error
	raw string
}

func (m *mockAuthenticator) Authenticate(_ context.Context, raw string) (*models.AuthContext, error) {
	m.raw = raw
	return m.ac, m.err
}

// --- Mock Counter ---

type mockCounter struct {
	counter int64
	key     string
	err     error
}

func (m *mockCounter) Ping(_ context.Context) error { return nil }
func (m *mockCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counter++
	m.key = key
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func flipLast(s string) string {
	last := byte('0')
	if s[len(s)-1] == '0' {
		last = '1'
	}
	return s[:len(s)-1] + string(last)
}

func withAuthContext(r *http.Request, prefix string) *http.Request {
	ac := &models.AuthContext{TenantID: uuid.New(), KeyPrefix: prefix}
	return r.WithContext(mw.SetAuthContext(r.Context(), ac))
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_PassesHeaderValue(t *testing.T) {
	ma := &mockAuthenticator{ac: &models.AuthContext{TenantID: uuid.New(), KeyPrefix: "a1b2c3d4"}}
	handler := mw.NewAuth(ma, testHeader).Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ns_a1b2c3d4_secret", ma.raw)
}

func TestAuth_SetsAuthContext(t *testing.T) {
	want := &models.AuthContext{TenantID: uuid.New(), TenantName: "acme", KeyPrefix: "a1b2c3d4"}
	handler := mw.NewAuth(&mockAuthenticator{ac: want}, testHeader).Authenticate(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := mw.GetAuthContext(r)
			require.True(t, ok)
			assert.Equal(t, want, got)
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_OutcomeMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing", auth.ErrMissingCredential, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"malformed", auth.ErrMalformedCredential, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"unknown", auth.ErrUnknownCredential, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"mismatch", auth.ErrSecretMismatch, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired", auth.ErrKeyExpired, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"tenant inactive", auth.ErrTenantInactive, http.StatusForbidden, "TENANT_SUSPENDED"},
		{"store down", fmt.Errorf("find api key: %w", errors.New("connection refused")), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"hasher busy", fmt.Errorf("verify secret: %w", credential.ErrHasherBusy), http.StatusServiceUnavailable, "UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := mw.NewAuth(&mockAuthenticator{err: tt.err}, testHeader).Authenticate(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { called = true }))

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(testHeader, "ns_a1b2c3d4_secret")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.False(t, called, "handler must not run")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errBody(t, w)["code"])
		})
	}
}

func TestAuth_DeniedMessagesIdentical(t *testing.T) {
	var bodies []string
	for _, err := range []error{auth.ErrUnknownCredential, auth.ErrSecretMismatch, auth.ErrKeyExpired, auth.ErrMalformedCredential} {
		handler := mw.NewAuth(&mockAuthenticator{err: err}, testHeader).Authenticate(okHandler())
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		bodies = append(bodies, w.Body.String())
	}
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

// authStack wires the real gate over an in-memory store.
type authStack struct {
	reg  *tenant.Registry
	keys *tenant.Keys
	gate *auth.Gate
}

type noopProvisioner struct{}

func (noopProvisioner) EnsureNamespace(_ context.Context, _ string) error { return nil }

func newAuthStack(t *testing.T) *authStack {
	t.Helper()
	mem := storetest.NewMemory()
	h, err := credential.NewHasher(credential.HasherConfig{Cost: bcrypt.MinCost, Workers: 2})
	require.NoError(t, err)
	keys := tenant.NewKeys(mem, h)
	gate := auth.NewGate(keys, h, time.Second)
	t.Cleanup(gate.Wait)
	return &authStack{reg: tenant.NewRegistry(mem, noopProvisioner{}), keys: keys, gate: gate}
}

func TestAuth_RealGate(t *testing.T) {
	s := newAuthStack(t)
	ctx := context.Background()

	acme, err := s.reg.CreateTenant(ctx, "acme")
	require.NoError(t, err)
	token, key, err := s.keys.IssueKey(ctx, acme.ID, tenant.IssueOptions{})
	require.NoError(t, err)

	var seen *models.AuthContext
	handler := mw.NewAuth(s.gate, testHeader).Authenticate(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = mw.GetAuthContext(r)
			w.WriteHeader(http.StatusOK)
		}))

	do := func(value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/test", nil)
		if value != "" {
			req.Header.Set(testHeader, value)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := do(token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, acme.ID, seen.TenantID)
	assert.Equal(t, key.KeyPrefix, seen.KeyPrefix)

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(flipLast(token)).Code)

	require.NoError(t, s.reg.SetTenantStatus(ctx, acme.ID, models.TenantSuspended))
	assert.Equal(t, http.StatusForbidden, do(token).Code)
	assert.Equal(t, http.StatusForbidden, do(flipLast(token)).Code)

	require.NoError(t, s.reg.SetTenantStatus(ctx, acme.ID, models.TenantActive))
	require.NoError(t, s.keys.RevokeKey(ctx, key.KeyPrefix))
	assert.Equal(t, http.StatusUnauthorized, do(token).Code)
}

func TestAuth_UnavailableLogsWithoutCredential(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := mw.NewAuth(&mockAuthenticator{err: errors.New("pool closed")}, testHeader).Authenticate(okHandler())
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_0123456789abcdef")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, buf.String(), "authentication unavailable")
	assert.NotContains(t, buf.String(), "0123456789abcdef")
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCounter{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := withAuthContext(httptest.NewRequest("GET", "/test", nil), "a1b2c3d4")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, mc.key, "ratelimit:a1b2c3d4:")
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitRejectedTotal)
	mc := &mockCounter{counter: 60} // next IncrWithExpiry will return 61
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := withAuthContext(httptest.NewRequest("GET", "/test", nil), "a1b2c3d4")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejectedTotal))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCounter{err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := withAuthContext(httptest.NewRequest("GET", "/test", nil), "a1b2c3d4")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	mc := &mockCounter{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, mc.counter)
}

func TestRateLimit_NilCounterDisabled(t *testing.T) {
	handler := mw.NewRateLimit(nil, 1).Limit(okHandler())

	for i := 0; i < 3; i++ {
		req := withAuthContext(httptest.NewRequest("GET", "/test", nil), "a1b2c3d4")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_OmitsCredentialHeader(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_topsecretvalue")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Contains(t, buf.String(), `"status":418`)
	assert.NotContains(t, buf.String(), "topsecretvalue")
}

func TestLogger_RecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tenantID := uuid.New()
	ma := &mockAuthenticator{ac: &models.AuthContext{TenantID: tenantID, KeyPrefix: "a1b2c3d4"}}
	handler := mw.Logger(mw.NewAuth(ma, testHeader).Authenticate(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_topsecretvalue")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "a1b2c3d4", line["key_prefix"])
	assert.Equal(t, tenantID.String(), line["tenant_id"])
	assert.NotContains(t, buf.String(), "topsecretvalue")
}

func TestLogger_NoCallerWhenDenied(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ma := &mockAuthenticator{err: auth.ErrUnknownCredential}
	handler := mw.Logger(mw.NewAuth(ma, testHeader).Authenticate(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_topsecretvalue")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"status":401`)
	assert.NotContains(t, buf.String(), "key_prefix")
}

func TestRecovery_RecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ma := &mockAuthenticator{ac: &models.AuthContext{TenantID: uuid.New(), KeyPrefix: "a1b2c3d4"}}
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	handler := mw.Logger(mw.Recovery(mw.NewAuth(ma, testHeader).Authenticate(panicky)))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(testHeader, "ns_a1b2c3d4_topsecretvalue")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"key_prefix":"a1b2c3d4"`)
}
