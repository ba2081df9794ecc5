package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/iam/auth"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

func riderIdentity() kernel.AuthContext {
	return kernel.AuthContext{
		Username:         "+915550001111@lsp-rider.local",
		EnterpriseID:     "enterprise-1",
		EnterpriseType:   "lsp",
		Role:             "lsp_rider",
		ConfirmedByAdmin: true,
		AuthMethod:       "otp",
		Origin:           kernel.OriginLocal,
	}
}

func newSigner(now *time.Time) *auth.JWTService {
	return auth.NewJWTService("test-secret", "lsp-auth", 4*time.Hour).
		WithClock(func() time.Time { return *now })
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var xerr *errx.Error
	if !errx.As(err, &xerr) {
		t.Fatalf("expected registry error, got %v", err)
	}
	return xerr.Code
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	svc := newSigner(&now)

	token, err := svc.IssueToken(context.Background(), riderIdentity())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	ac, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	want := riderIdentity()
	if ac.Username != want.Username || ac.EnterpriseID != want.EnterpriseID || ac.Role != want.Role {
		t.Fatalf("identity round trip lost fields: %+v", ac)
	}
	if ac.Origin != kernel.OriginLocal || ac.AuthMethod != "otp" {
		t.Fatalf("origin tagging wrong: %+v", ac)
	}
	if !ac.ConfirmedByAdmin {
		t.Fatal("consent flag lost")
	}
}

func TestVerifyHonorsLifetimeBoundary(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	svc := newSigner(&now)

	token, err := svc.IssueToken(context.Background(), riderIdentity())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	now = now.Add(4*time.Hour - time.Second)
	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	now = now.Add(2 * time.Second)
	_, err = svc.Verify(context.Background(), token)
	if err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if errCode(t, err) != "AUTH_TOKEN_EXPIRED" {
		t.Fatalf("expected expiry code, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	signer := newSigner(&now)
	other := auth.NewJWTService("different-secret", "lsp-auth", 4*time.Hour).
		WithClock(func() time.Time { return now })

	token, err := signer.IssueToken(context.Background(), riderIdentity())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := other.Verify(context.Background(), token); err == nil {
		t.Fatal("token with wrong signature accepted")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	foreign := auth.NewJWTService("test-secret", "someone-else", 4*time.Hour).
		WithClock(func() time.Time { return now })
	svc := newSigner(&now)

	token, err := foreign.IssueToken(context.Background(), riderIdentity())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); err == nil {
		t.Fatal("token from foreign issuer accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	svc := newSigner(&now)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Verify(context.Background(), raw); err == nil {
			t.Fatalf("garbage token accepted: %q", raw)
		}
	}
}

func TestVerifyRejectsIncompleteIdentity(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	svc := newSigner(&now)

	identity := riderIdentity()
	identity.EnterpriseID = ""
	token, err := svc.IssueToken(context.Background(), identity)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); err == nil {
		t.Fatal("token without eid accepted")
	}
}
