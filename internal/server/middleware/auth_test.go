package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/crypto"
)

func authedHandler(t *testing.T, auth *crypto.HMACAuth) http.Handler {
	t.Helper()
	return AdminAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAdminAuthAcceptsSignedRequest(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "ops", Secret: "s3cret"}
	h := authedHandler(t, auth)

	body := `{"retention_days":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/archive/events", strings.NewReader(body))
	for k, v := range auth.Headers(http.MethodPost, "/api/admin/archive/events", body) {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuthRejectsBadRequests(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "ops", Secret: "s3cret"}
	h := authedHandler(t, auth)

	// No headers at all.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong API key.
	other := &crypto.HMACAuth{Key: "intruder", Secret: "s3cret"}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil)
	for k, v := range other.Headers(http.MethodPost, "/api/admin/pause", "") {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signature over a different body.
	req = httptest.NewRequest(http.MethodPost, "/api/admin/pause", strings.NewReader(`{"x":1}`))
	for k, v := range auth.Headers(http.MethodPost, "/api/admin/pause", `{"x":2}`) {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthDisabledWhenNil(t *testing.T) {
	h := authedHandler(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "10.0.0.1", extractClientIP(req))

	req.Header.Set("X-Real-IP", "5.6.7.8")
	require.Equal(t, "5.6.7.8", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	require.Equal(t, "1.2.3.4", extractClientIP(req))
}
