package iamhttp

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll/enrollsrv"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// Supplier self-service user management. Every route in this group already
// passed the claim gate and the tenant-scope gate, so the body's eid equals
// the caller's verified eid.

// SupplierAddUser enrolls an internal user into the caller's enterprise.
func (h *Handler) SupplierAddUser(c *fiber.Ctx) error {
	var req signupRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	return withIdentity(c, func(ac *kernel.AuthContext) error {
		result, err := h.enrollment.Enroll(c.Context(), enrollsrv.SignupRequest{
			Email:          req.Data.Email,
			Password:       req.Data.Password,
			Username:       req.Data.Username,
			EnterpriseType: req.Data.EnterpriseType,
			BusinessName:   req.Data.BusinessName,
			ClientID:       req.Data.ClientID,
			Eid:            req.Data.Eid,
			Role:           req.Data.Role,
			CallerEid:      ac.EnterpriseID,
		})
		if err != nil {
			return err
		}
		return Created(c, "User added. Please verify the email.", result)
	})
}

// SupplierConfirmUser records admin consent for a user of the caller's own
// enterprise.
func (h *Handler) SupplierConfirmUser(c *fiber.Ctx) error {
	var req adminUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Data.Eid == "" || req.Data.Username == "" {
		return enroll.ErrMissingFields()
	}

	err := h.enrollment.ConfirmInternalUser(c.Context(), kernel.EnterpriseID(req.Data.Eid), kernel.NewUsername(req.Data.Username))
	if err != nil {
		return err
	}
	return Success(c, "User confirmed by admin", nil)
}

// SupplierDeleteUser removes a user from the caller's own enterprise.
func (h *Handler) SupplierDeleteUser(c *fiber.Ctx) error {
	var req adminUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Data.Eid == "" || req.Data.Username == "" {
		return enroll.ErrMissingFields()
	}

	err := h.enrollment.DeleteUser(c.Context(), kernel.EnterpriseID(req.Data.Eid), kernel.NewUsername(req.Data.Username))
	if err != nil {
		return err
	}
	return Success(c, "User deleted", nil)
}
