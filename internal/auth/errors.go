package auth

import "errors"

// Authentication failure kinds. They are for logs and metrics; callers see
// only the Outcome returned by Classify.
var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrUnknownCredential   = errors.New("unknown credential")
	ErrSecretMismatch      = errors.New("secret mismatch")
	ErrKeyExpired          = errors.New("key expired")
	ErrTenantInactive      = errors.New("tenant inactive")
)

// Outcome is what the calling boundary is allowed to learn from an attempt.
type Outcome int

const (
	OutcomeAuthenticated Outcome = iota
	// OutcomeDenied covers every credential failure except a suspended tenant.
	OutcomeDenied
	OutcomeTenantInactive
	// OutcomeUnavailable means the attempt could not be decided: storage
	// failed, the hash pool shed the request, or the caller went away.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeDenied:
		return "denied"
	case OutcomeTenantInactive:
		return "tenant_inactive"
	default:
		return "unavailable"
	}
}

// Classify maps an Authenticate error to its caller-visible outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAuthenticated
	case errors.Is(err, ErrTenantInactive):
		return OutcomeTenantInactive
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrMalformedCredential),
		errors.Is(err, ErrUnknownCredential),
		errors.Is(err, ErrSecretMismatch),
		errors.Is(err, ErrKeyExpired):
		return OutcomeDenied
	default:
		return OutcomeUnavailable
	}
}

// resultLabel names the precise result for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingCredential):
		return "missing"
	case errors.Is(err, ErrMalformedCredential):
		return "malformed"
	case errors.Is(err, ErrUnknownCredential):
		return "unknown"
	case errors.Is(err, ErrSecretMismatch):
		return "secret_mismatch"
	case errors.Is(err, ErrKeyExpired):
		return "expired"
	case errors.Is(err, ErrTenantInactive):
		return "tenant_inactive"
	default:
		return "error"
	}
}
