package auth

import (
	"context"
	"time"

	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// TokenVerifier checks one token family and maps its claims onto the uniform
// identity object.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*kernel.AuthContext, error)
}

// KeySetCache stores fetched JWKS documents so every request does not hit the
// identity provider's key endpoint.
type KeySetCache interface {
	// Get returns the cached document and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AuditEvent records one authorization decision.
type AuditEvent struct {
	Action   string
	Username kernel.Username
	Eid      kernel.EnterpriseID
	Allowed  bool
	Reason   string
}

// AuditService persists authorization decisions. Implementations must never
// fail the request; recording is best effort.
type AuditService interface {
	Record(ctx context.Context, event AuditEvent)
}
