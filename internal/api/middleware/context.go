package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/kiranshivaraju/noosphera/pkg/models"
)

type contextKey string

const (
	authContextKey contextKey = "auth_context"
	callerSlotKey  contextKey = "caller_slot"
)

// callerSlot lets middleware outside Authenticate see who the request was
// authenticated as once the inner handlers have run.
type callerSlot struct {
	mu sync.Mutex
	ac *models.AuthContext
}

func withCallerSlot(ctx context.Context) (context.Context, *callerSlot) {
	slot := &callerSlot{}
	return context.WithValue(ctx, callerSlotKey, slot), slot
}

// attrs returns tenant_id and key_prefix log attributes, or nil before
// authentication.
func (s *callerSlot) attrs() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ac == nil {
		return nil
	}
	return []any{"tenant_id", s.ac.TenantID, "key_prefix", s.ac.KeyPrefix}
}

// SetAuthContext attaches the resolved caller identity to ctx.
func SetAuthContext(ctx context.Context, ac *models.AuthContext) context.Context {
	if slot, ok := ctx.Value(callerSlotKey).(*callerSlot); ok {
		slot.mu.Lock()
		slot.ac = ac
		slot.mu.Unlock()
	}
	return context.WithValue(ctx, authContextKey, ac)
}

// GetAuthContext returns the identity the auth middleware attached, if any.
func GetAuthContext(r *http.Request) (*models.AuthContext, bool) {
	ac, ok := r.Context().Value(authContextKey).(*models.AuthContext)
	return ac, ok && ac != nil
}

func getKeyPrefix(r *http.Request) (string, bool) {
	ac, ok := GetAuthContext(r)
	if !ok {
		return "", false
	}
	return ac.KeyPrefix, true
}
