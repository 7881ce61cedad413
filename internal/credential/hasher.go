package credential

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/kiranshivaraju/noosphera/internal/metrics"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const defaultMaxQueue = 64

// ErrHasherBusy is returned when the hash pool is saturated and its wait queue is full.
var ErrHasherBusy = errors.New("credential hasher busy")

// HasherConfig sizes the hash worker pool.
type HasherConfig struct {
	Cost     int // bcrypt cost; 0 means bcrypt.DefaultCost
	Workers  int // concurrent hash operations; 0 means runtime.NumCPU()
	MaxQueue int // callers allowed to wait for a worker; 0 means 64, negative means none
}

// Hasher hashes and verifies token secrets with bcrypt on a bounded pool.
// At most Workers comparisons run at once whatever the request concurrency.
type Hasher struct {
	cost     int
	sem      *semaphore.Weighted
	waiting  atomic.Int64
	maxQueue int64
	dummy    string
}

// NewHasher creates a Hasher. It computes one throwaway digest up front so
// lookups that find no key can still pay for a full comparison.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxQueue := int64(cfg.MaxQueue)
	switch {
	case cfg.MaxQueue == 0:
		maxQueue = defaultMaxQueue
	case cfg.MaxQueue < 0:
		maxQueue = 0
	}

	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy digest: %w", err)
	}

	return &Hasher{
		cost:     cost,
		sem:      semaphore.NewWeighted(int64(workers)),
		maxQueue: maxQueue,
		dummy:    string(dummy),
	}, nil
}

// Hash returns the salted bcrypt digest of secret.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	var digest []byte
	err := h.run(ctx, func() error {
		var err error
		digest, err = bcrypt.GenerateFromPassword([]byte(secret), h.cost)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. A digest bcrypt cannot
// parse never matches. The returned error is non-nil only when the
// comparison could not run (pool saturated or ctx done).
func (h *Hasher) Verify(ctx context.Context, secret, digest string) (bool, error) {
	var match bool
	err := h.run(ctx, func() error {
		match = bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return match, nil
}

// DummyVerify runs a full comparison against a digest nothing can match.
func (h *Hasher) DummyVerify(ctx context.Context, secret string) error {
	_, err := h.Verify(ctx, secret, h.dummy)
	return err
}

// run executes fn on a pool slot. If ctx ends first, run returns ctx.Err()
// and fn keeps its slot until it finishes.
func (h *Hasher) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.sem.TryAcquire(1) {
		if h.waiting.Add(1) > h.maxQueue {
			h.waiting.Add(-1)
			metrics.HashShedTotal.Inc()
			return ErrHasherBusy
		}
		err := h.sem.Acquire(ctx, 1)
		h.waiting.Add(-1)
		if err != nil {
			return err
		}
	}

	metrics.HashInFlight.Inc()
	done := make(chan error, 1)
	go func() {
		defer func() {
			metrics.HashInFlight.Dec()
			h.sem.Release(1)
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
