package iamhttp

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beejcap/lsp-auth/pkg/iam/auth"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll/enrollsrv"
	"github.com/beejcap/lsp-auth/pkg/iam/otp/otpsrv"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// Handler carries the HTTP surface of the identity service.
type Handler struct {
	enrollment *enrollsrv.Service
	otp        *otpsrv.Service
	authn      *auth.Authenticator
}

// NewHandler wires the HTTP surface.
func NewHandler(enrollment *enrollsrv.Service, otp *otpsrv.Service, authn *auth.Authenticator) *Handler {
	return &Handler{
		enrollment: enrollment,
		otp:        otp,
		authn:      authn,
	}
}

// Register mounts all routes under the given router.
func (h *Handler) Register(router fiber.Router) {
	authGroup := router.Group("/auth")
	authGroup.Post("/signup", h.Signup)
	authGroup.Post("/confirm", h.ConfirmSignup)
	authGroup.Post("/resend-code", h.ResendCode)
	authGroup.Post("/login", h.Login)
	authGroup.Post("/forgot-password", h.ForgotPassword)
	authGroup.Post("/confirm-forgot-password", h.ConfirmForgotPassword)
	authGroup.Post("/sendOTP", h.SendOtp)
	authGroup.Post("/verifyOTP", h.VerifyOtp)
	authGroup.Get("/validate-token", h.authn.Authenticate(), h.ValidateToken)

	admin := router.Group("/admin",
		h.authn.Authenticate(),
		h.authn.RequireClaims("superadmin:manage"),
	)
	admin.Post("/confirmUserSignup", h.ConfirmUserSignup)
	admin.Post("/deleteEnterprise", h.DeleteEnterprise)
	admin.Get("/getAllEnterprises", h.GetAllEnterprises)

	supplier := router.Group("/supplier",
		h.authn.Authenticate(),
		h.authn.RequireClaims("supplier:manageUser"),
		h.authn.RequireTenantScope(),
	)
	supplier.Post("/addUser", h.SupplierAddUser)
	supplier.Post("/confirmUser", h.SupplierConfirmUser)
	supplier.Post("/deleteUser", h.SupplierDeleteUser)
}

// ============================================================================
// Request DTOs
// ============================================================================

// Request bodies arrive wrapped in a data envelope.
type signupRequest struct {
	Data struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		Username       string `json:"username"`
		EnterpriseType string `json:"enterprise_type"`
		BusinessName   string `json:"business_name"`
		ClientID       string `json:"clientId"`
		Eid            string `json:"eid"`
		Role           string `json:"role"`
	} `json:"data"`
}

type confirmRequest struct {
	Data struct {
		Username string `json:"username"`
		Code     string `json:"code"`
		ClientID string `json:"clientId"`
	} `json:"data"`
}

type loginRequest struct {
	Data struct {
		Username string `json:"username"`
		Password string `json:"password"`
		ClientID string `json:"clientId"`
	} `json:"data"`
}

type forgotPasswordRequest struct {
	Data struct {
		Username string `json:"username"`
		ClientID string `json:"clientId"`
	} `json:"data"`
}

type confirmForgotPasswordRequest struct {
	Data struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Code     string `json:"code"`
		ClientID string `json:"clientId"`
	} `json:"data"`
}

type otpRequest struct {
	Data struct {
		Eid          string `json:"eid"`
		MobileNumber string `json:"mobile_number"`
		Otp          string `json:"otp"`
	} `json:"data"`
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed request body")
	}
	return nil
}

// ============================================================================
// Signup and password flows
// ============================================================================

// Signup enrolls a new user. Anonymous signups found a new enterprise; an
// authenticated caller supplying an eid adds an internal user to their own
// enterprise.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var callerEid kernel.EnterpriseID
	if req.Data.Eid != "" {
		ac, err := h.authn.Identify(c)
		if err != nil {
			return err
		}
		if ac != nil {
			callerEid = ac.EnterpriseID
		}
	}

	result, err := h.enrollment.Enroll(c.Context(), enrollsrv.SignupRequest{
		Email:          req.Data.Email,
		Password:       req.Data.Password,
		Username:       req.Data.Username,
		EnterpriseType: req.Data.EnterpriseType,
		BusinessName:   req.Data.BusinessName,
		ClientID:       req.Data.ClientID,
		Eid:            req.Data.Eid,
		Role:           req.Data.Role,
		CallerEid:      callerEid,
	})
	if err != nil {
		return err
	}
	return Created(c, "User registered. Please verify your email.", result)
}

func (h *Handler) ConfirmSignup(c *fiber.Ctx) error {
	var req confirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	err := h.enrollment.ConfirmSignUp(c.Context(), req.Data.ClientID, kernel.NewUsername(req.Data.Username), req.Data.Code)
	if err != nil {
		return err
	}
	return Success(c, "User confirmed successfully", nil)
}

func (h *Handler) ResendCode(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	err := h.enrollment.ResendCode(c.Context(), req.Data.ClientID, kernel.NewUsername(req.Data.Username))
	if err != nil {
		return err
	}
	return Success(c, "Verification code resent", nil)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.enrollment.Login(c.Context(), req.Data.ClientID, kernel.NewUsername(req.Data.Username), req.Data.Password)
	if err != nil {
		return err
	}
	return SuccessWithToken(c, "Login successful", result.JWT, result)
}

func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	err := h.enrollment.ForgotPassword(c.Context(), req.Data.ClientID, kernel.NewUsername(req.Data.Username))
	if err != nil {
		return err
	}
	return Success(c, "Password reset code sent", nil)
}

func (h *Handler) ConfirmForgotPassword(c *fiber.Ctx) error {
	var req confirmForgotPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	err := h.enrollment.ConfirmForgotPassword(c.Context(), req.Data.ClientID, kernel.NewUsername(req.Data.Username), req.Data.Password, req.Data.Code)
	if err != nil {
		return err
	}
	return Success(c, "Password reset successfully", nil)
}

// ============================================================================
// OTP flows
// ============================================================================

func (h *Handler) SendOtp(c *fiber.Ctx) error {
	var req otpRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.otp.RequestOtp(c.Context(), req.Data.MobileNumber, kernel.EnterpriseID(req.Data.Eid)); err != nil {
		return err
	}
	return Success(c, "OTP sent successfully", nil)
}

func (h *Handler) VerifyOtp(c *fiber.Ctx) error {
	var req otpRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.otp.VerifyOtp(c.Context(), req.Data.MobileNumber, req.Data.Otp)
	if err != nil {
		return err
	}
	return SuccessWithToken(c, "OTP verified successfully", result.JWT, result)
}

// ============================================================================
// Token introspection
// ============================================================================

// ValidateToken echoes the verified identity back to the caller. Gateways
// use it as their auth subrequest target.
func (h *Handler) ValidateToken(c *fiber.Ctx) error {
	return withIdentity(c, func(ac *kernel.AuthContext) error {
		return Success(c, "Token is valid", ac)
	})
}

func withIdentity(c *fiber.Ctx, fn func(ac *kernel.AuthContext) error) error {
	ac, err := auth.FromContext(c)
	if err != nil {
		return err
	}
	return fn(ac)
}

// enterpriseView strips record internals off the enterprise entity for
// listing responses.
type enterpriseView struct {
	Eid            kernel.EnterpriseID `json:"eid"`
	EnterpriseType string              `json:"enterprise_type"`
	BusinessName   string              `json:"business_name"`
	Admin          kernel.Username     `json:"admin"`
	EmailVerified  bool                `json:"email_verified"`
}

func toEnterpriseViews(enterprises []enroll.Enterprise) []enterpriseView {
	views := make([]enterpriseView, 0, len(enterprises))
	for _, e := range enterprises {
		views = append(views, enterpriseView{
			Eid:            e.Eid,
			EnterpriseType: e.EnterpriseType.String(),
			BusinessName:   e.BusinessName,
			Admin:          e.Admin,
			EmailVerified:  e.EmailVerified,
		})
	}
	return views
}
