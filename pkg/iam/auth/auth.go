package auth

import (
	"net/http"

	"github.com/beejcap/lsp-auth/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeTokenNotSupplied  = ErrRegistry.Register("TOKEN_NOT_SUPPLIED", errx.TypeAuthorization, http.StatusUnauthorized, "Token not supplied")
	CodeTokenInvalid      = ErrRegistry.Register("TOKEN_INVALID", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid token")
	CodeTokenExpired      = ErrRegistry.Register("TOKEN_EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "Token has expired")
	CodeIssuerUnknown     = ErrRegistry.Register("ISSUER_UNKNOWN", errx.TypeAuthorization, http.StatusUnauthorized, "Token issuer not recognized")
	CodeKeySetUnavailable = ErrRegistry.Register("KEYSET_UNAVAILABLE", errx.TypeExternal, http.StatusBadGateway, "Signing key set unavailable")
)

func ErrTokenNotSupplied() *errx.Error  { return ErrRegistry.New(CodeTokenNotSupplied) }
func ErrTokenInvalid() *errx.Error      { return ErrRegistry.New(CodeTokenInvalid) }
func ErrTokenExpired() *errx.Error      { return ErrRegistry.New(CodeTokenExpired) }
func ErrIssuerUnknown() *errx.Error     { return ErrRegistry.New(CodeIssuerUnknown) }
func ErrKeySetUnavailable() *errx.Error { return ErrRegistry.New(CodeKeySetUnavailable) }
