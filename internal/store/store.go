package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Unique-constraint violations the registries react to individually.
var (
	ErrDuplicatePrefix = errors.New("duplicate api key prefix")
	ErrDuplicateLabel  = errors.New("duplicate api key label for tenant")
	ErrDuplicateName   = errors.New("duplicate tenant name")
)

// Store is the control-plane data access interface. All tenant and API key
// rows live in the core schema and are always addressed fully qualified.
type Store interface {
	Ping(ctx context.Context) error

	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, prefix string) (bool, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// LookupAPIKey returns the active key with prefix, only if its tenant is active.
	LookupAPIKey(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error)
	// LookupAPIKeyAnyTenant returns the key with prefix whatever its own or its tenant's status.
	LookupAPIKeyAnyTenant(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error)
}
