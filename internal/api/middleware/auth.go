package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// Auth checks a bearer token against a single bcrypt hash. With no hash
// configured every request passes.
type Auth struct {
	keyHash []byte
}

// NewAuth creates a new Auth middleware. keyHash is a bcrypt hash; empty disables auth.
func NewAuth(keyHash string) *Auth {
	return &Auth{keyHash: []byte(keyHash)}
}

// Enabled reports whether a key hash is configured.
func (a *Auth) Enabled() bool {
	return len(a.keyHash) > 0
}

// Authenticate validates the Bearer token and records a client id derived from it.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header")
			return
		}

		if bcrypt.CompareHashAndPassword(a.keyHash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(SetClientID(r.Context(), keyClientID(rawKey))))
	})
}

// keyClientID names a client by a digest of its key so the key itself never reaches the cache.
func keyClientID(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return "key:" + hex.EncodeToString(sum[:8])
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
