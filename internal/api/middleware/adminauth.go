package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/craftline/tenantd/internal/api/response"
	"github.com/craftline/tenantd/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the shared administrative key.
const AdminKeyHeader = "x-admin-api-key"

// AdminAuth gates the tenant administration API behind a shared key,
// supplied either in plaintext (compared constant-time) or as a bcrypt hash.
type AdminAuth struct {
	key     string
	keyHash string
}

// NewAdminAuth creates admin-key middleware from validated config.
func NewAdminAuth(cfg config.AdminConfig) *AdminAuth {
	return &AdminAuth{key: cfg.APIKey, keyHash: cfg.APIKeyHash}
}

// Require rejects requests without a matching admin key. The response never
// says why the key was rejected.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied := r.Header.Get(AdminKeyHeader)
		if supplied == "" || !a.matches(supplied) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_ADMIN_KEY", "Invalid admin key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) matches(supplied string) bool {
	if a.keyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.keyHash), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(a.key)) == 1
}
