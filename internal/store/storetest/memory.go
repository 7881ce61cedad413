// Package storetest provides an in-memory store.Store for tests. It enforces
// the same unique constraints as the core schema.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/noosphera/internal/store"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

// Memory is a concurrency-safe in-memory store.
type Memory struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]models.Tenant
	keys    map[uuid.UUID]models.APIKey

	// Err, when set, is returned by every method except Ping.
	Err error
	// LookupErr, when set, is returned by LookupAPIKey.
	LookupErr error
	// AnyTenantErr, when set, is returned by LookupAPIKeyAnyTenant.
	AnyTenantErr error
	// TouchErr, when set, is returned by UpdateAPIKeyLastUsed.
	TouchErr error
	// CreateKeyHook, when set, runs before CreateAPIKey and may return an error.
	CreateKeyHook func(key *models.APIKey) error
}

var _ store.Store = (*Memory)(nil)

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants: make(map[uuid.UUID]models.Tenant),
		keys:    make(map[uuid.UUID]models.APIKey),
	}
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) CreateTenant(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, existing := range m.tenants {
		if existing.Name == t.Name {
			return store.ErrDuplicateName
		}
		if existing.Namespace == t.Namespace || existing.ID == t.ID {
			return store.ErrDuplicateKey
		}
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) ListTenants(_ context.Context) ([]*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]*models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateTenantStatus(_ context.Context, id uuid.UUID, status models.TenantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	t, ok := m.tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	m.tenants[id] = t
	return nil
}

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	if m.CreateKeyHook != nil {
		if err := m.CreateKeyHook(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.tenants[key.TenantID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range m.keys {
		if existing.KeyPrefix == key.KeyPrefix {
			return store.ErrDuplicatePrefix
		}
		if key.Label != nil && existing.Label != nil &&
			existing.TenantID == key.TenantID && *existing.Label == *key.Label {
			return store.ErrDuplicateLabel
		}
	}
	m.keys[key.ID] = *key
	return nil
}

func (m *Memory) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.TenantID == tenantID {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, prefix string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for id, k := range m.keys {
		if k.KeyPrefix == prefix && k.Status == models.KeyActive {
			k.Status = models.KeyRevoked
			m.keys[id] = k
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.TouchErr != nil {
		return m.TouchErr
	}
	if k, ok := m.keys[id]; ok {
		k.LastUsedAt = &at
		m.keys[id] = k
	}
	return nil
}

func (m *Memory) LookupAPIKey(_ context.Context, prefix string) (*models.APIKey, *models.Tenant, error) {
	if m.LookupErr != nil {
		return nil, nil, m.LookupErr
	}
	return m.lookup(prefix, true)
}

func (m *Memory) LookupAPIKeyAnyTenant(_ context.Context, prefix string) (*models.APIKey, *models.Tenant, error) {
	if m.AnyTenantErr != nil {
		return nil, nil, m.AnyTenantErr
	}
	return m.lookup(prefix, false)
}

func (m *Memory) lookup(prefix string, active bool) (*models.APIKey, *models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, nil, m.Err
	}
	for _, k := range m.keys {
		if k.KeyPrefix != prefix {
			continue
		}
		t := m.tenants[k.TenantID]
		if active && (k.Status != models.KeyActive || !t.Active()) {
			return nil, nil, store.ErrNotFound
		}
		k := k
		return &k, &t, nil
	}
	return nil, nil, store.ErrNotFound
}

// Key returns a copy of the stored key with id.
func (m *Memory) Key(id uuid.UUID) (models.APIKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	return k, ok
}

// KeyCount returns the number of stored keys.
func (m *Memory) KeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
