package models

import (
	"time"

	"github.com/google/uuid"
)

// KeyStatus is the lifecycle state of an API key.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRevoked KeyStatus = "revoked"
)

// APIKey represents a bearer credential record.
// The plaintext secret is shown once at issuance; only the bcrypt hash is stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"    json:"tenant_id"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	Label      *string    `db:"name"         json:"label,omitempty"`
	Status     KeyStatus  `db:"status"       json:"status"`
	ExpiresAt  *time.Time `db:"expires_at"   json:"expires_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
}

// ExpiredAt reports whether the key carries an expiry earlier than now.
func (k *APIKey) ExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
