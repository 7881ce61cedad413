package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/noosphera/internal/api/middleware"
	"github.com/kiranshivaraju/noosphera/internal/api/response"
	"github.com/kiranshivaraju/noosphera/internal/store"
	"github.com/kiranshivaraju/noosphera/internal/tenant"
)

// SchemaInspector reports which schema a tenant-scoped unit of work resolves to.
type SchemaInspector interface {
	CurrentSchema(ctx context.Context, namespace string) (string, error)
}

type whoAmIResponse struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	KeyPrefix  string    `json:"key_prefix"`
	Namespace  string    `json:"namespace"`
	Schema     string    `json:"schema"`
}

// NewWhoAmIHandler returns an http.HandlerFunc for GET /api/v1/whoami.
func NewWhoAmIHandler(schemas SchemaInspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := mw.GetAuthContext(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		ns := tenant.NamespaceFor(ac.TenantID)
		schema, err := schemas.CurrentSchema(r.Context(), ns)
		if err != nil {
			if errors.Is(err, store.ErrInvalidNamespace) {
				slog.Error("tenant namespace invalid", "tenant_id", ac.TenantID, "namespace", ns)
			} else {
				slog.Error("resolve tenant schema failed", "tenant_id", ac.TenantID, "error", err)
			}
			response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE",
				"Tenant data temporarily unavailable", nil)
			return
		}

		response.JSON(w, whoAmIResponse{
			TenantID:   ac.TenantID,
			TenantName: ac.TenantName,
			KeyPrefix:  ac.KeyPrefix,
			Namespace:  ns,
			Schema:     schema,
		})
	}
}
