package models

import "github.com/google/uuid"

// AuthContext is the identity bound to a request after its credential was verified.
//
// Scopes and Roles are reserved for a future authorization layer and are never
// populated by authentication.
type AuthContext struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	KeyPrefix  string    `json:"key_prefix"`
	KeyID      uuid.UUID `json:"key_id"`

	Scopes []string `json:"scopes,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}
