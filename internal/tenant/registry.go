// Package tenant manages tenant lifecycle and the API keys bound to tenants.
package tenant

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/noosphera/internal/store"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

// NamespacePrefix starts every tenant namespace name.
const NamespacePrefix = "t_"

// NamespaceFor derives the storage namespace owned by tenant id.
func NamespaceFor(id uuid.UUID) string {
	return NamespacePrefix + hex.EncodeToString(id[:])
}

// NamespaceProvisioner creates storage namespaces idempotently.
type NamespaceProvisioner interface {
	EnsureNamespace(ctx context.Context, name string) error
}

// Registry creates and looks up tenants.
type Registry struct {
	store       store.Store
	provisioner NamespaceProvisioner
	now         func() time.Time
}

// NewRegistry creates a Registry.
func NewRegistry(s store.Store, p NamespaceProvisioner) *Registry {
	return &Registry{store: s, provisioner: p, now: time.Now}
}

// CreateTenant provisions a namespace for a fresh tenant id and then records
// the tenant. A failure after the namespace exists leaves it behind; retrying
// converges because namespace creation is idempotent.
func (r *Registry) CreateTenant(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTenantName)
	}

	id := uuid.New()
	namespace := NamespaceFor(id)

	if err := r.provisioner.EnsureNamespace(ctx, namespace); err != nil {
		return nil, fmt.Errorf("%w: ensure namespace %s: %w", ErrProvisioningFailed, namespace, err)
	}

	now := r.now().UTC()
	t := &models.Tenant{
		ID:        id,
		Name:      name,
		Namespace: namespace,
		Status:    models.TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: insert tenant: %w", ErrProvisioningFailed, err)
	}

	slog.Info("tenant created", "tenant_id", t.ID, "namespace", namespace)
	return t, nil
}

// ListTenants returns all tenants, oldest first.
func (r *Registry) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	return r.store.ListTenants(ctx)
}

// GetTenant returns the tenant with id.
func (r *Registry) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := r.store.GetTenant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetTenantStatus suspends or reactivates a tenant.
func (r *Registry) SetTenantStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	err := r.store.UpdateTenantStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	if err != nil {
		return err
	}
	slog.Info("tenant status changed", "tenant_id", id, "status", status)
	return nil
}
