package kernel

// ============================================================================
// Context Types
// ============================================================================

// ClaimsOrigin tags which token family produced a verified identity.
type ClaimsOrigin string

const (
	// OriginLocal marks tokens signed by this service (OTP path).
	OriginLocal ClaimsOrigin = "local"
	// OriginProvider marks tokens issued by the external identity provider.
	OriginProvider ClaimsOrigin = "provider"
)

// AuthContext is the uniform verified-identity object injected into each
// request once a token has been verified. The authorization gate operates on
// it without caring which token family produced it.
type AuthContext struct {
	Username         Username     `json:"username"`
	EnterpriseID     EnterpriseID `json:"eid"`
	EnterpriseType   string       `json:"enterprise_type"`
	Role             string       `json:"role"`
	ConfirmedByAdmin bool         `json:"is_confirmed_by_admin"`
	AuthMethod       string       `json:"auth_method"`
	Origin           ClaimsOrigin `json:"origin"`
}

// IsValid verifies the AuthContext carries the minimum identity material.
func (ac *AuthContext) IsValid() bool {
	return !ac.Username.IsEmpty() && !ac.EnterpriseID.IsEmpty()
}

// BelongsTo reports whether the identity is scoped to the given enterprise.
func (ac *AuthContext) BelongsTo(eid EnterpriseID) bool {
	return !ac.EnterpriseID.IsEmpty() && ac.EnterpriseID == eid
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores the AuthContext in request locals.
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the per-request correlation id.
	RequestIDKey ContextKey = "request_id"
)
