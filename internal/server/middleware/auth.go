package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/openpredict/ammd/internal/crypto"
)

const maxSignedBody = 1 << 20

// AdminAuth verifies the per-request HMAC signature on operator endpoints.
// A nil auth disables the middleware entirely, which is only acceptable in
// local development.
func AdminAuth(auth *crypto.HMACAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if auth == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Amm-Api-Key")
			ts := r.Header.Get("X-Amm-Timestamp")
			sig := r.Header.Get("X-Amm-Signature")
			if key == "" || ts == "" || sig == "" {
				http.Error(w, "missing auth headers", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(auth.Key)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				http.Error(w, "unreadable body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !auth.Verify(r.Method, r.URL.Path, string(body), ts, sig, time.Now()) {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
