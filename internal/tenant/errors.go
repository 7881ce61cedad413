package tenant

import "errors"

// Administrative errors. These are operator-facing and safe to surface verbatim.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantInactive     = errors.New("tenant inactive")
	ErrInvalidTenantName  = errors.New("invalid tenant name")
	ErrInvalidStatus      = errors.New("invalid tenant status")
	ErrProvisioningFailed = errors.New("tenant provisioning failed")
	ErrPrefixCollision    = errors.New("api key prefix collision")
	ErrDuplicateLabel     = errors.New("api key label already used by tenant")
	ErrKeyNotFound        = errors.New("api key not found")
)
