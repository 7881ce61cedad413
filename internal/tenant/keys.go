package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/noosphera/internal/credential"
	"github.com/kiranshivaraju/noosphera/internal/store"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

const defaultIssueAttempts = 5

// SecretHasher produces the stored digest of a token secret.
type SecretHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
}

// IssueOptions carries the optional attributes of a new key.
type IssueOptions struct {
	Label     string
	ExpiresAt *time.Time
}

// Keys issues, revokes, and resolves API keys.
type Keys struct {
	store     store.Store
	hasher    SecretHasher
	now       func() time.Time
	newPrefix func() (string, error)
	attempts  int
}

// NewKeys creates a Keys registry.
func NewKeys(s store.Store, h SecretHasher) *Keys {
	return &Keys{
		store:     s,
		hasher:    h,
		now:       time.Now,
		newPrefix: credential.NewPrefix,
		attempts:  defaultIssueAttempts,
	}
}

// IssueKey creates an active key for an active tenant and returns the
// plaintext token. The token is returned exactly once and never stored.
//
// Prefix uniqueness is enforced by the database; a collision is retried
// with a new prefix up to a fixed number of attempts.
func (k *Keys) IssueKey(ctx context.Context, tenantID uuid.UUID, opts IssueOptions) (string, *models.APIKey, error) {
	t, err := k.store.GetTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return "", nil, err
	}
	if !t.Active() {
		return "", nil, fmt.Errorf("%w: %s", ErrTenantInactive, tenantID)
	}

	secret, err := credential.NewSecret()
	if err != nil {
		return "", nil, err
	}
	digest, err := k.hasher.Hash(ctx, secret)
	if err != nil {
		return "", nil, err
	}

	var label *string
	if l := strings.TrimSpace(opts.Label); l != "" {
		label = &l
	}

	for attempt := 1; attempt <= k.attempts; attempt++ {
		prefix, err := k.newPrefix()
		if err != nil {
			return "", nil, err
		}
		token, err := credential.Encode(prefix, secret)
		if err != nil {
			return "", nil, err
		}

		key := &models.APIKey{
			ID:        uuid.New(),
			TenantID:  tenantID,
			KeyPrefix: prefix,
			KeyHash:   digest,
			Label:     label,
			Status:    models.KeyActive,
			ExpiresAt: opts.ExpiresAt,
			CreatedAt: k.now().UTC(),
		}

		err = k.store.CreateAPIKey(ctx, key)
		switch {
		case err == nil:
			slog.Info("api key issued", "tenant_id", tenantID, "key_prefix", prefix)
			return token, key, nil
		case errors.Is(err, store.ErrDuplicatePrefix):
			slog.Warn("api key prefix collision, retrying", "attempt", attempt)
		case errors.Is(err, store.ErrDuplicateLabel):
			return "", nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, *label)
		case errors.Is(err, store.ErrNotFound):
			return "", nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		default:
			return "", nil, err
		}
	}

	return "", nil, fmt.Errorf("%w: gave up after %d attempts", ErrPrefixCollision, k.attempts)
}

// RevokeKey revokes the active key with prefix. Unknown and already revoked
// prefixes are a no-op.
func (k *Keys) RevokeKey(ctx context.Context, prefix string) error {
	revoked, err := k.store.RevokeAPIKey(ctx, prefix)
	if err != nil {
		return err
	}
	if revoked {
		slog.Info("api key revoked", "key_prefix", prefix)
	}
	return nil
}

// ListKeys returns a tenant's keys, newest first.
func (k *Keys) ListKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	if _, err := k.store.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return nil, err
	}
	return k.store.ListAPIKeys(ctx, tenantID)
}

// FindActiveByPrefix returns the active key with prefix together with its
// tenant, only when that tenant is active.
func (k *Keys) FindActiveByPrefix(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error) {
	key, t, err := k.store.LookupAPIKey(ctx, prefix)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrKeyNotFound
	}
	return key, t, err
}

// FindByPrefix returns the key with prefix and its tenant, ignoring key and
// tenant status.
func (k *Keys) FindByPrefix(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error) {
	key, t, err := k.store.LookupAPIKeyAnyTenant(ctx, prefix)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrKeyNotFound
	}
	return key, t, err
}

// TouchLastUsed records when a key last authenticated a request.
func (k *Keys) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return k.store.UpdateAPIKeyLastUsed(ctx, id, at.UTC())
}
