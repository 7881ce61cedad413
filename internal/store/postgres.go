package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool       *pgxpool.Pool
	namespaces *Namespaces
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, namespaces: NewNamespaces(pool)}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Namespaces returns the per-tenant handle registry bound to this store's pool.
func (s *PostgresStore) Namespaces() *Namespaces {
	return s.namespaces
}

// --- Tenants ---

const tenantColumns = `id, name, db_schema_name, status, created_at, updated_at`

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO core.tenants (id, name, db_schema_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Namespace, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM core.tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM core.tenants ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) UpdateTenantStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE core.tenants SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

const keyColumns = `k.id, k.tenant_id, k.key_prefix, k.key_hash, k.name, k.status, k.expires_at, k.last_used_at, k.created_at`

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO core.api_keys (id, tenant_id, key_prefix, key_hash, name, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.KeyPrefix, key.KeyHash, key.Label, string(key.Status), key.ExpiresAt, key.CreatedAt)
	if err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			return dup
		}
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM core.api_keys k WHERE k.tenant_id = $1 ORDER BY k.created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks the active key with prefix revoked. It reports whether a
// row changed; revoking an unknown or already revoked prefix is not an error.
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, prefix string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE core.api_keys SET status = 'revoked' WHERE key_prefix = $1 AND status = 'active'`, prefix)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE core.api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupAPIKey(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error) {
	return s.lookupAPIKey(ctx,
		`SELECT `+keyColumns+`, t.id, t.name, t.db_schema_name, t.status, t.created_at, t.updated_at
		 FROM core.api_keys k JOIN core.tenants t ON t.id = k.tenant_id
		 WHERE k.key_prefix = $1 AND k.status = 'active' AND t.status = 'active'`, prefix)
}

func (s *PostgresStore) LookupAPIKeyAnyTenant(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error) {
	return s.lookupAPIKey(ctx,
		`SELECT `+keyColumns+`, t.id, t.name, t.db_schema_name, t.status, t.created_at, t.updated_at
		 FROM core.api_keys k JOIN core.tenants t ON t.id = k.tenant_id
		 WHERE k.key_prefix = $1`, prefix)
}

func (s *PostgresStore) lookupAPIKey(ctx context.Context, query, prefix string) (*models.APIKey, *models.Tenant, error) {
	var (
		k            models.APIKey
		t            models.Tenant
		keyStatus    string
		tenantStatus string
	)
	err := s.pool.QueryRow(ctx, query, prefix).Scan(
		&k.ID, &k.TenantID, &k.KeyPrefix, &k.KeyHash, &k.Label, &keyStatus, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt,
		&t.ID, &t.Name, &t.Namespace, &tenantStatus, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup api key: %w", err)
	}
	k.Status = models.KeyStatus(keyStatus)
	t.Status = models.TenantStatus(tenantStatus)
	return &k, &t, nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var (
		t      models.Tenant
		status string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Namespace, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TenantStatus(status)
	return &t, nil
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var (
		k      models.APIKey
		status string
	)
	if err := row.Scan(&k.ID, &k.TenantID, &k.KeyPrefix, &k.KeyHash, &k.Label, &status,
		&k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
		return nil, err
	}
	k.Status = models.KeyStatus(status)
	return &k, nil
}

// duplicateKeyError maps a unique_violation to the sentinel for its
// constraint, or returns nil if err is not a unique_violation.
func duplicateKeyError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "uq_api_keys_prefix":
		return ErrDuplicatePrefix
	case "uq_api_keys_tenant_name":
		return ErrDuplicateLabel
	case "uq_tenants_name":
		return ErrDuplicateName
	default:
		return ErrDuplicateKey
	}
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
