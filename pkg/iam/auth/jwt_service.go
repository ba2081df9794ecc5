package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// LocalClaims is the claim set of tokens this service signs itself (the OTP
// session family).
type LocalClaims struct {
	jwt.RegisteredClaims
	Eid              string `json:"eid"`
	Role             string `json:"role"`
	EnterpriseType   string `json:"enterpriseType"`
	ConfirmedByAdmin bool   `json:"isConfirmedByAdmin"`
	AuthMethod       string `json:"auth_method"`
}

// JWTService signs and verifies the local HS256 token family.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService builds the local signer. ttl bounds session lifetime; the
// expiry claim is authoritative, there is no refresh.
func NewJWTService(secret, issuer string, ttl time.Duration) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// Issuer returns the iss value stamped into local tokens.
func (s *JWTService) Issuer() string { return s.issuer }

// IssueToken mints a signed session token for a verified identity.
func (s *JWTService) IssueToken(_ context.Context, identity kernel.AuthContext) (string, error) {
	now := s.now()
	claims := LocalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.Username.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		Eid:              identity.EnterpriseID.String(),
		Role:             identity.Role,
		EnterpriseType:   identity.EnterpriseType,
		ConfirmedByAdmin: identity.ConfirmedByAdmin,
		AuthMethod:       identity.AuthMethod,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", ErrTokenInvalid().WithCause(err)
	}
	return signed, nil
}

// Verify validates signature, issuer and expiry and maps the claims onto the
// uniform identity object.
func (s *JWTService) Verify(_ context.Context, token string) (*kernel.AuthContext, error) {
	claims := &LocalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid().WithDetail("alg", t.Method.Alg())
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired().WithCause(err)
		}
		return nil, ErrTokenInvalid().WithCause(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid()
	}

	ac := &kernel.AuthContext{
		Username:         kernel.Username(claims.Subject),
		EnterpriseID:     kernel.EnterpriseID(claims.Eid),
		EnterpriseType:   claims.EnterpriseType,
		Role:             claims.Role,
		ConfirmedByAdmin: claims.ConfirmedByAdmin,
		AuthMethod:       claims.AuthMethod,
		Origin:           kernel.OriginLocal,
	}
	if !ac.IsValid() {
		return nil, ErrTokenInvalid().WithDetail("reason", "identity claims incomplete")
	}
	return ac, nil
}
