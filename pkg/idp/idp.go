package idp

import (
	"context"
	"net/http"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// Custom attribute names the service maintains on provider users.
const (
	AttrConfirmedByAdmin = "custom:isConfirmedByAdmin"
	AttrEnterpriseType   = "custom:enterpriseType"
	AttrRole             = "custom:role"
	AttrEid              = "custom:eid"
)

// RegisterInput carries everything needed to create a credential at the
// provider. ClientID is the per-tenant app client identifier.
type RegisterInput struct {
	ClientID   string
	Username   kernel.Username
	Email      string
	Password   string
	Attributes map[string]string
}

// AuthResult is the provider's token bundle from a password authentication.
type AuthResult struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int32
}

// User is the provider-side view of a user.
type User struct {
	Username   kernel.Username
	Status     string
	Attributes map[string]string
}

// Confirmed reports whether the provider considers the user's registration
// complete (email verified).
func (u *User) Confirmed() bool {
	return u.Status == "CONFIRMED"
}

// IdentityProvider is the black-box credential capability. The enrollment
// orchestrator only depends on this interface; the Cognito adapter and the
// test fakes both satisfy it.
type IdentityProvider interface {
	Register(ctx context.Context, in RegisterInput) error
	ConfirmRegistration(ctx context.Context, clientID string, username kernel.Username, code string) error
	ResendCode(ctx context.Context, clientID string, username kernel.Username) error
	PasswordAuth(ctx context.Context, clientID string, username kernel.Username, password string) (*AuthResult, error)
	ForgotPassword(ctx context.Context, clientID string, username kernel.Username) error
	ConfirmForgotPassword(ctx context.Context, clientID string, username kernel.Username, password, code string) error
	AdminGetUser(ctx context.Context, username kernel.Username) (*User, error)
	AdminUpdateAttributes(ctx context.Context, username kernel.Username, attrs map[string]string) error
	AdminDeleteUser(ctx context.Context, username kernel.Username) error
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IDP")

var (
	CodeUsernameExists = ErrRegistry.Register("USERNAME_EXISTS", errx.TypeConflict, http.StatusConflict, "User already exists with this email address")
	CodeUserNotFound   = ErrRegistry.Register("USER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found at identity provider")
	CodeNotAuthorized  = ErrRegistry.Register("NOT_AUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Incorrect username or password")
	CodeCodeMismatch   = ErrRegistry.Register("CODE_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "Invalid verification code")
	CodeUpstream       = ErrRegistry.Register("UPSTREAM", errx.TypeExternal, http.StatusBadGateway, "Identity provider request failed")
)

func ErrUsernameExists() *errx.Error { return ErrRegistry.New(CodeUsernameExists) }
func ErrUserNotFound() *errx.Error   { return ErrRegistry.New(CodeUserNotFound) }
func ErrNotAuthorized() *errx.Error  { return ErrRegistry.New(CodeNotAuthorized) }
func ErrCodeMismatch() *errx.Error   { return ErrRegistry.New(CodeCodeMismatch) }
func ErrUpstream() *errx.Error       { return ErrRegistry.New(CodeUpstream) }

// IsUsernameExists reports whether err is the duplicate-username conflict.
func IsUsernameExists(err error) bool {
	var e *errx.Error
	return errx.As(err, &e) && e.Code == CodeUsernameExists.Code
}
