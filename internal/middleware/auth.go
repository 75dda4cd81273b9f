package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kreativelabske/lipia-backend/internal/api/httpx"
	"github.com/kreativelabske/lipia-backend/internal/auth"
)

type ctxKey string

const ctxOwnerKey ctxKey = "owner"

// Owner returns the authenticated account reference, if any.
func Owner(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxOwnerKey).(string)
	return v, ok
}

type AuthMiddleware struct {
	V      *auth.Verifier
	AppEnv string
}

func NewAuthMiddleware(v *auth.Verifier, appEnv string) *AuthMiddleware {
	return &AuthMiddleware{V: v, AppEnv: appEnv}
}

// DEV: Bearer dev-<id> | otherwise: Bearer <JWT(access)>
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[len("Bearer "):])

		if m.AppEnv == "dev" && strings.HasPrefix(token, "dev-") {
			ctx := context.WithValue(r.Context(), ctxOwnerKey, strings.TrimPrefix(token, "dev-"))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := m.V.Parse(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), ctxOwnerKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
