package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// DefaultKeySetTTL bounds how long a fetched JWKS document is reused before
// the provider is asked again. Key rotation at the provider is rare; an hour
// keeps rotated-out keys from lingering too long.
const DefaultKeySetTTL = time.Hour

// jwk is one RSA key entry of the provider's published key set.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// CognitoVerifier validates provider-issued RS256 tokens against the
// provider's published key set.
type CognitoVerifier struct {
	issuer     string
	httpClient *http.Client
	cache      KeySetCache
	keySetTTL  time.Duration
	now        func() time.Time
}

// NewCognitoVerifier builds the provider-family verifier. The issuer URL is
// both the expected iss claim and the base of the JWKS endpoint.
func NewCognitoVerifier(issuer string, httpClient *http.Client, cache KeySetCache) *CognitoVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CognitoVerifier{
		issuer:     issuer,
		httpClient: httpClient,
		cache:      cache,
		keySetTTL:  DefaultKeySetTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (v *CognitoVerifier) WithClock(now func() time.Time) *CognitoVerifier {
	v.now = now
	return v
}

// Issuer returns the iss value this verifier accepts.
func (v *CognitoVerifier) Issuer() string { return v.issuer }

// Verify validates signature, issuer and expiry of a provider token and maps
// its custom attribute claims onto the uniform identity object.
func (v *CognitoVerifier) Verify(ctx context.Context, token string) (*kernel.AuthContext, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrTokenInvalid().WithDetail("alg", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrTokenInvalid().WithDetail("reason", "kid header missing")
		}
		return v.publicKey(ctx, kid)
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		var xerr *errx.Error
		if errors.As(err, &xerr) {
			return nil, xerr
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired().WithCause(err)
		}
		return nil, ErrTokenInvalid().WithCause(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid()
	}

	username, _ := claims["cognito:username"].(string)
	if username == "" {
		username, _ = claims["sub"].(string)
	}
	eid, _ := claims["custom:eid"].(string)
	role, _ := claims["custom:role"].(string)
	enterpriseType, _ := claims["custom:enterpriseType"].(string)
	confirmed, _ := claims["custom:isConfirmedByAdmin"].(string)

	ac := &kernel.AuthContext{
		Username:         kernel.NewUsername(username),
		EnterpriseID:     kernel.EnterpriseID(eid),
		EnterpriseType:   enterpriseType,
		Role:             role,
		ConfirmedByAdmin: confirmed == "true",
		AuthMethod:       "password",
		Origin:           kernel.OriginProvider,
	}
	if !ac.IsValid() {
		return nil, ErrTokenInvalid().WithDetail("reason", "identity claims incomplete")
	}
	return ac, nil
}

// publicKey resolves the RSA public key with the given kid from the
// provider's key set, consulting the cache first.
func (v *CognitoVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	raw, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	var set jwkSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, ErrKeySetUnavailable().WithCause(err)
	}
	for _, key := range set.Keys {
		if key.Kid == kid && key.Kty == "RSA" {
			return buildRSAKey(key)
		}
	}
	return nil, ErrTokenInvalid().WithDetail("reason", "signing key not in key set").WithDetail("kid", kid)
}

func (v *CognitoVerifier) keySet(ctx context.Context) ([]byte, error) {
	url := v.issuer + "/.well-known/jwks.json"

	if v.cache != nil {
		if cached, ok, err := v.cache.Get(ctx, url); err == nil && ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ErrKeySetUnavailable().WithCause(err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, ErrKeySetUnavailable().WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrKeySetUnavailable().WithDetail("status", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ErrKeySetUnavailable().WithCause(err)
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, url, raw, v.keySetTTL); err != nil {
			// Cache misses are tolerable; verification proceeds either way.
			return raw, nil
		}
	}
	return raw, nil
}

func buildRSAKey(key jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, ErrKeySetUnavailable().WithCause(fmt.Errorf("decoding modulus: %w", err))
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, ErrKeySetUnavailable().WithCause(fmt.Errorf("decoding exponent: %w", err))
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
