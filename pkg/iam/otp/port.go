package otp

import (
	"context"

	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// MembershipChecker answers whether a username is an admin-confirmed member
// of an enterprise. Implemented by the enrollment orchestrator.
type MembershipChecker interface {
	CheckConfirmedMember(ctx context.Context, eid kernel.EnterpriseID, username kernel.Username) error
}

// TokenIssuer mints a signed token for a verified identity. Implemented by
// the local HS256 signer.
type TokenIssuer interface {
	IssueToken(ctx context.Context, identity kernel.AuthContext) (string, error)
}
