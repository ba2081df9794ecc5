package roles

import (
	"net/http"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// AdminRoleSuffix is appended to the enterprise type when the signup founds
// a new enterprise: its creator is always that enterprise's admin.
const AdminRoleSuffix = "_admin"

// ClaimsTable is the immutable role → claim-set mapping loaded at startup.
type ClaimsTable struct {
	claims map[string][]string
}

// NewClaimsTable validates and builds the table. Empty claim strings from
// configuration are dropped; a role with zero claims is still a valid role,
// it just cannot pass any claim gate.
func NewClaimsTable(raw map[string][]string) (*ClaimsTable, error) {
	if len(raw) == 0 {
		return nil, errx.Validation("role claims table must not be empty")
	}

	claims := make(map[string][]string, len(raw))
	for role, list := range raw {
		if role == "" {
			return nil, errx.Validation("role claims table contains an empty role name")
		}
		cleaned := make([]string, 0, len(list))
		for _, c := range list {
			if c != "" {
				cleaned = append(cleaned, c)
			}
		}
		claims[role] = cleaned
	}

	return &ClaimsTable{claims: claims}, nil
}

// Has reports whether role is a known role name.
func (t *ClaimsTable) Has(role string) bool {
	_, ok := t.claims[role]
	return ok
}

// ClaimsFor returns the claim set for role. Unknown role names are rejected
// rather than treated as "no claims".
func (t *ClaimsTable) ClaimsFor(role string) ([]string, error) {
	list, ok := t.claims[role]
	if !ok {
		return nil, ErrUnknownRole().WithDetail("role", role)
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

// HasRequiredClaims succeeds when the role's claim set intersects the
// required list non-empty.
func (t *ClaimsTable) HasRequiredClaims(role string, required []string) error {
	claims, err := t.ClaimsFor(role)
	if err != nil {
		return err
	}
	for _, need := range required {
		for _, have := range claims {
			if need == have {
				return nil
			}
		}
	}
	return ErrMissingClaims().
		WithDetail("role", role).
		WithDetail("required_claims", required)
}

// Resolve maps a signup request to its canonical role.
//
// Without a target eid the signup founds a new enterprise and its creator
// becomes `<enterprise_type>_admin`. With a target eid an internal user is
// being added: the role must be supplied explicitly and exist in the table,
// and the caller's own verified eid must equal the target.
func (t *ClaimsTable) Resolve(enterpriseType string, targetEid kernel.EnterpriseID, explicitRole string, callerEid kernel.EnterpriseID) (string, error) {
	if targetEid.IsEmpty() {
		return enterpriseType + AdminRoleSuffix, nil
	}

	if explicitRole == "" {
		return "", ErrRoleRequired()
	}
	if !t.Has(explicitRole) {
		return "", ErrInvalidRole().WithDetail("role", explicitRole)
	}
	if callerEid != targetEid {
		return "", ErrTenantMismatch().
			WithDetail("eid", targetEid.String())
	}

	return explicitRole, nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("ROLES")

var (
	CodeRoleRequired   = ErrRegistry.Register("ROLE_REQUIRED", errx.TypeValidation, http.StatusBadRequest, "Role is required when adding internal users")
	CodeInvalidRole    = ErrRegistry.Register("INVALID_ROLE", errx.TypeValidation, http.StatusBadRequest, "Invalid role for internal users")
	CodeUnknownRole    = ErrRegistry.Register("UNKNOWN_ROLE", errx.TypeAuthorization, http.StatusForbidden, "Forbidden - Not authorised to perform this action")
	CodeMissingClaims  = ErrRegistry.Register("MISSING_CLAIMS", errx.TypeAuthorization, http.StatusForbidden, "Forbidden - Not authorised to perform this action")
	CodeTenantMismatch = ErrRegistry.Register("TENANT_MISMATCH", errx.TypeAuthorization, http.StatusForbidden, "Wrong eid provided")
)

func ErrRoleRequired() *errx.Error   { return ErrRegistry.New(CodeRoleRequired) }
func ErrInvalidRole() *errx.Error    { return ErrRegistry.New(CodeInvalidRole) }
func ErrUnknownRole() *errx.Error    { return ErrRegistry.New(CodeUnknownRole) }
func ErrMissingClaims() *errx.Error  { return ErrRegistry.New(CodeMissingClaims) }
func ErrTenantMismatch() *errx.Error { return ErrRegistry.New(CodeTenantMismatch) }
