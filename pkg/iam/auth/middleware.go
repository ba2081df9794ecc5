package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/beejcap/lsp-auth/pkg/iam"
	"github.com/beejcap/lsp-auth/pkg/iam/roles"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// Authenticator verifies bearer tokens of both families and injects the
// resulting identity into request locals. The family is picked by peeking at
// the unverified iss claim; verification itself always runs against the
// matching verifier's key material.
type Authenticator struct {
	local       TokenVerifier
	provider    TokenVerifier
	localIssuer string
	claims      *roles.ClaimsTable
	audit       AuditService
}

// NewAuthenticator wires both token families behind one middleware.
func NewAuthenticator(local TokenVerifier, provider TokenVerifier, localIssuer string, claims *roles.ClaimsTable, audit AuditService) *Authenticator {
	return &Authenticator{
		local:       local,
		provider:    provider,
		localIssuer: localIssuer,
		claims:      claims,
		audit:       audit,
	}
}

// Authenticate is the bearer-token middleware. It rejects requests without a
// verifiable token and stores the AuthContext in locals for the handlers and
// gates downstream.
func (a *Authenticator) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractToken(c)
		if raw == "" {
			return ErrTokenNotSupplied()
		}

		ac, err := a.verify(c, raw)
		if err != nil {
			a.record(c, AuditEvent{Action: "authenticate", Allowed: false, Reason: err.Error()})
			return err
		}

		a.record(c, AuditEvent{Action: "authenticate", Username: ac.Username, Eid: ac.EnterpriseID, Allowed: true})
		c.Locals(string(kernel.AuthContextKey), ac)
		return c.Next()
	}
}

func (a *Authenticator) verify(c *fiber.Ctx, raw string) (*kernel.AuthContext, error) {
	issuer, err := unverifiedIssuer(raw)
	if err != nil {
		return nil, err
	}
	if issuer == a.localIssuer {
		return a.local.Verify(c.Context(), raw)
	}
	if a.provider == nil {
		return nil, ErrIssuerUnknown().WithDetail("iss", issuer)
	}
	return a.provider.Verify(c.Context(), raw)
}

// RequireClaims gates a route on the caller's role holding at least one of
// the required claims.
func (a *Authenticator) RequireClaims(required ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := FromContext(c)
		if err != nil {
			return err
		}
		if err := a.claims.HasRequiredClaims(ac.Role, required); err != nil {
			a.record(c, AuditEvent{Action: "claim_gate", Username: ac.Username, Eid: ac.EnterpriseID, Allowed: false, Reason: err.Error()})
			return err
		}
		return c.Next()
	}
}

// RequireTenantScope gates a route on the caller's verified eid claim. The
// claim must be non-empty; when the request body also names an eid (top level
// or under a data wrapper) it must match the claim. Bodies without an eid
// pass on the claim alone.
func (a *Authenticator) RequireTenantScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := FromContext(c)
		if err != nil {
			return err
		}
		if ac.EnterpriseID.IsEmpty() {
			a.record(c, AuditEvent{Action: "tenant_gate", Username: ac.Username, Allowed: false, Reason: "no eid claim"})
			return iam.ErrTenantMismatch().WithDetail("reason", "token carries no eid")
		}

		var body struct {
			Eid  string `json:"eid"`
			Data struct {
				Eid string `json:"eid"`
			} `json:"data"`
		}
		// An unreadable body names no eid; the handler's own parse rejects it.
		_ = c.BodyParser(&body)
		eid := body.Data.Eid
		if eid == "" {
			eid = body.Eid
		}
		if eid != "" && !ac.BelongsTo(kernel.EnterpriseID(eid)) {
			a.record(c, AuditEvent{Action: "tenant_gate", Username: ac.Username, Eid: ac.EnterpriseID, Allowed: false, Reason: "eid mismatch"})
			return iam.ErrTenantMismatch().WithDetail("eid", eid)
		}
		return c.Next()
	}
}

func (a *Authenticator) record(c *fiber.Ctx, event AuditEvent) {
	if a.audit != nil {
		a.audit.Record(c.Context(), event)
	}
}

// Identify verifies the bearer token when one is supplied and returns
// (nil, nil) for anonymous requests. Used by endpoints that accept both.
func (a *Authenticator) Identify(c *fiber.Ctx) (*kernel.AuthContext, error) {
	raw := extractToken(c)
	if raw == "" {
		return nil, nil
	}
	return a.verify(c, raw)
}

// FromContext retrieves the verified identity stored by Authenticate.
func FromContext(c *fiber.Ctx) (*kernel.AuthContext, error) {
	ac, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	if !ok || ac == nil {
		return nil, iam.ErrUnauthorized()
	}
	return ac, nil
}

// extractToken reads the bearer token from the Authorization header. A bare
// token without the Bearer prefix is accepted as well.
func extractToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		return ""
	}
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return header
}

// unverifiedIssuer peeks at the iss claim without verifying the signature.
// Only used for dispatch; the selected verifier re-parses with full checks.
func unverifiedIssuer(raw string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return "", ErrTokenInvalid().WithCause(err)
	}
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return "", ErrIssuerUnknown()
	}
	return issuer, nil
}
