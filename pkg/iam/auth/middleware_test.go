package auth_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/beejcap/lsp-auth/pkg/iam/auth"
	"github.com/beejcap/lsp-auth/pkg/iam/iamhttp"
	"github.com/beejcap/lsp-auth/pkg/iam/roles"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

func gateTable(t *testing.T) *roles.ClaimsTable {
	t.Helper()
	tbl, err := roles.NewClaimsTable(map[string][]string{
		"supplier_admin": {"supplier:manageUser"},
		"lsp_rider":      {},
	})
	if err != nil {
		t.Fatalf("building claims table: %v", err)
	}
	return tbl
}

func gateApp(t *testing.T) (*fiber.App, *auth.JWTService) {
	t.Helper()
	signer := auth.NewJWTService("test-secret", "lsp-auth", 4*time.Hour)
	authn := auth.NewAuthenticator(signer, nil, "lsp-auth", gateTable(t), nil)

	app := fiber.New(fiber.Config{ErrorHandler: iamhttp.ErrorHandler})
	app.Get("/me", authn.Authenticate(), func(c *fiber.Ctx) error {
		ac, err := auth.FromContext(c)
		if err != nil {
			return err
		}
		return c.JSON(ac)
	})
	app.Post("/manage", authn.Authenticate(), authn.RequireClaims("supplier:manageUser"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/scoped", authn.Authenticate(), authn.RequireTenantScope(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app, signer
}

func issue(t *testing.T, signer *auth.JWTService, role string) string {
	t.Helper()
	token, err := signer.IssueToken(context.Background(), kernel.AuthContext{
		Username:         "admin@acme.com",
		EnterpriseID:     "enterprise-1",
		EnterpriseType:   "supplier",
		Role:             role,
		ConfirmedByAdmin: true,
		AuthMethod:       "otp",
		Origin:           kernel.OriginLocal,
	})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return token
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	app, _ := gateApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticateAcceptsLocalToken(t *testing.T) {
	app, signer := gateApp(t)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, signer, "lsp_rider"))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthenticateRejectsUnknownIssuer(t *testing.T) {
	app, _ := gateApp(t)
	foreign := auth.NewJWTService("test-secret", "https://other-issuer", 4*time.Hour)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, foreign, "lsp_rider"))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRequireClaimsGate(t *testing.T) {
	app, signer := gateApp(t)

	cases := []struct {
		role   string
		status int
	}{
		{"supplier_admin", fiber.StatusOK},
		{"lsp_rider", fiber.StatusForbidden},
		{"unknown_role", fiber.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/manage", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+issue(t, signer, tc.role))

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("role %s: expected %d, got %d", tc.role, tc.status, resp.StatusCode)
		}
	}
}

func TestRequireTenantScope(t *testing.T) {
	app, signer := gateApp(t)
	token := issue(t, signer, "supplier_admin")

	cases := []struct {
		body   string
		status int
	}{
		{`{"data":{"eid":"enterprise-1"}}`, fiber.StatusOK},
		{`{"eid":"enterprise-1"}`, fiber.StatusOK},
		{`{"data":{"eid":"enterprise-2"}}`, fiber.StatusForbidden},
		// A body naming no eid passes on the claim alone.
		{`{"data":{}}`, fiber.StatusOK},
		{`{"data":{"username":"x@acme.com"}}`, fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/scoped", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("body %s: expected %d, got %d", tc.body, tc.status, resp.StatusCode)
		}
	}
}
