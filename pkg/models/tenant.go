package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the administrative lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Valid reports whether s is a known tenant status.
func (s TenantStatus) Valid() bool {
	return s == TenantActive || s == TenantSuspended
}

// Tenant represents an isolated customer. Each tenant owns exactly one
// storage namespace whose name is derived from its ID.
type Tenant struct {
	ID        uuid.UUID    `db:"id"             json:"id"`
	Name      string       `db:"name"           json:"name"`
	Namespace string       `db:"db_schema_name" json:"namespace"`
	Status    TenantStatus `db:"status"         json:"status"`
	CreatedAt time.Time    `db:"created_at"     json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"     json:"updated_at"`
}

// Active reports whether the tenant may authenticate and receive new keys.
func (t *Tenant) Active() bool {
	return t.Status == TenantActive
}
