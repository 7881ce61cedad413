package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/noosphera/internal/api/response"
	"github.com/kiranshivaraju/noosphera/internal/auth"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

// Authenticator resolves a raw credential header value to a caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.AuthContext, error)
}

// Auth provides authentication middleware.
type Auth struct {
	gate   Authenticator
	header string
}

// NewAuth creates a new Auth middleware reading the credential from header.
func NewAuth(gate Authenticator, header string) *Auth {
	return &Auth{gate: gate, header: header}
}

// Authenticate resolves the credential header and sets the AuthContext in
// the request context. Failures never say which check rejected the request.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := a.gate.Authenticate(r.Context(), r.Header.Get(a.header))
		if err != nil {
			switch auth.Classify(err) {
			case auth.OutcomeTenantInactive:
				response.Error(w, http.StatusForbidden,
					"TENANT_SUSPENDED", "Tenant suspended", nil)
			case auth.OutcomeUnavailable:
				slog.Error("authentication unavailable",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
				)
				response.Error(w, http.StatusServiceUnavailable,
					"UNAVAILABLE", "Authentication temporarily unavailable", nil)
			default:
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "Invalid API key", nil)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(SetAuthContext(r.Context(), ac)))
	})
}
