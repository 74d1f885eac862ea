package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/leadflow/internal/util"
	"github.com/RealZimboGuy/leadflow/pkg/leadflow/core"
)

// KeyVerifier checks the X-API-Key header, see collaborators.APIKeyAuthenticator.
type KeyVerifier interface {
	Enabled() bool
	Verify(apiKey string) bool
}

type AuthController struct {
	Auth KeyVerifier
}

func (ac *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), core.CtxKeyRequestId, requestID)
		r = r.WithContext(ctx)

		if ac.Auth == nil || !ac.Auth.Enabled() {
			next(w, r)
			return
		}
		// Supported headers: X-API-Key: <key>
		if ac.Auth.Verify(r.Header.Get("X-API-Key")) {
			next(w, r)
			return
		}
		util.WriteError(w, http.StatusUnauthorized, "Unauthorized")
	}
}

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(core.CtxKeyRequestId).(string); ok {
		return v
	}
	return ""
}
