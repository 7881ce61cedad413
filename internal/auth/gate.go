// Package auth authenticates requests to exactly one tenant.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/noosphera/internal/credential"
	"github.com/kiranshivaraju/noosphera/internal/metrics"
	"github.com/kiranshivaraju/noosphera/internal/tenant"
	"github.com/kiranshivaraju/noosphera/pkg/models"
)

const defaultTouchTimeout = 5 * time.Second

// KeyResolver looks up key records by their public prefix.
type KeyResolver interface {
	FindActiveByPrefix(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error)
	FindByPrefix(ctx context.Context, prefix string) (*models.APIKey, *models.Tenant, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SecretVerifier compares a presented secret with a stored digest.
type SecretVerifier interface {
	Verify(ctx context.Context, secret, digest string) (bool, error)
	DummyVerify(ctx context.Context, secret string) error
}

// Gate turns a raw credential into an AuthContext.
//
// Every attempt that gets past decoding performs exactly one slow hash
// comparison, so response time does not tell an unknown prefix apart from a
// wrong secret.
type Gate struct {
	keys         KeyResolver
	verifier     SecretVerifier
	now          func() time.Time
	touchTimeout time.Duration
	touches      sync.WaitGroup
}

// NewGate creates a Gate. touchTimeout bounds the background last-used
// update; zero means five seconds.
func NewGate(keys KeyResolver, verifier SecretVerifier, touchTimeout time.Duration) *Gate {
	if touchTimeout <= 0 {
		touchTimeout = defaultTouchTimeout
	}
	return &Gate{keys: keys, verifier: verifier, now: time.Now, touchTimeout: touchTimeout}
}

// Authenticate verifies raw and returns the bound identity. Errors are one of
// the package's failure kinds, or a wrapped infrastructure error; use
// Classify to decide what the caller may see.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*models.AuthContext, error) {
	start := time.Now()
	ac, err := g.authenticate(ctx, raw)
	metrics.AuthDuration.Observe(time.Since(start).Seconds())
	metrics.AuthAttemptsTotal.WithLabelValues(resultLabel(err)).Inc()
	return ac, err
}

func (g *Gate) authenticate(ctx context.Context, raw string) (*models.AuthContext, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingCredential
	}
	prefix, secret, err := credential.Decode(raw)
	if err != nil {
		return nil, ErrMalformedCredential
	}

	key, t, err := g.keys.FindActiveByPrefix(ctx, prefix)
	if errors.Is(err, tenant.ErrKeyNotFound) {
		return nil, g.resolveMiss(ctx, prefix, secret)
	}
	if err != nil {
		return nil, fmt.Errorf("find api key: %w", err)
	}

	ok, err := g.verifier.Verify(ctx, secret, key.KeyHash)
	if err != nil {
		return nil, fmt.Errorf("verify secret: %w", err)
	}
	// Expired keys are reported as expired whatever the secret; they never touch last-used.
	if key.ExpiredAt(g.now()) {
		return nil, ErrKeyExpired
	}
	if !ok {
		return nil, ErrSecretMismatch
	}

	g.touch(ctx, key.ID)

	return &models.AuthContext{
		TenantID:   t.ID,
		TenantName: t.Name,
		KeyPrefix:  key.KeyPrefix,
		KeyID:      key.ID,
	}, nil
}

// resolveMiss decides between unknown and tenant-inactive after the primary
// lookup found nothing. Any key record under prefix whose tenant is not active
// reports tenant-inactive, whatever the key status, expiry or secret. The
// dummy comparison keeps the cost equal to a hit. Lookup errors here fall
// back to unknown.
func (g *Gate) resolveMiss(ctx context.Context, prefix, secret string) error {
	_, t, lookupErr := g.keys.FindByPrefix(ctx, prefix)
	if lookupErr != nil && !errors.Is(lookupErr, tenant.ErrKeyNotFound) {
		slog.Debug("tenant status lookup failed, reporting unknown key", "key_prefix", prefix, "error", lookupErr)
	}
	if err := g.verifier.DummyVerify(ctx, secret); err != nil {
		return fmt.Errorf("verify secret: %w", err)
	}
	if lookupErr == nil && !t.Active() {
		return ErrTenantInactive
	}
	return ErrUnknownCredential
}

// touch records key use in the background. It outlives the request context
// but not touchTimeout.
func (g *Gate) touch(ctx context.Context, id uuid.UUID) {
	at := g.now()
	g.touches.Add(1)
	go func() {
		defer g.touches.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.touchTimeout)
		defer cancel()
		if err := g.keys.TouchLastUsed(ctx, id, at); err != nil {
			slog.Warn("update api key last used failed", "key_id", id, "error", err)
		}
	}()
}

// Wait blocks until background last-used updates have finished.
func (g *Gate) Wait() {
	g.touches.Wait()
}
