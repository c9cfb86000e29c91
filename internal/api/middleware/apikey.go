package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/christy136/AutoFlowAI/internal/config"
)

// APIKeyAuth validates API keys on /api/v1 routes.
//
// When AUTOFLOW_API_KEYS is set, requests must carry one of the keys via
// Authorization: Bearer <key> or the configured key header (X-API-Key by
// default). Health, version and metrics endpoints stay public.
type APIKeyAuth struct {
	keys   [][]byte
	header string
}

// NewAPIKeyAuth builds the middleware from cfg. An empty key list disables
// the check.
func NewAPIKeyAuth(cfg config.AuthConfig) *APIKeyAuth {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	auth := &APIKeyAuth{header: header}
	for _, key := range strings.Split(cfg.APIKeys, ",") {
		if key = strings.TrimSpace(key); key != "" {
			auth.keys = append(auth.keys, []byte(key))
		}
	}
	return auth
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool { return len(a.keys) > 0 }

// Middleware enforces the key check.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := a.extract(r)
		if key == "" {
			respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or "+a.header+" header.")
			return
		}
		if !a.valid(key) {
			respondUnauthorized(w, "Invalid API key.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) valid(candidate string) bool {
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), key) == 1 {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) extract(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get(a.header)
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="autoflow"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
