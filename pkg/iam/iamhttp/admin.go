package iamhttp

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beejcap/lsp-auth/pkg/iam/enroll"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// Superadmin-gated operations.

type adminUserRequest struct {
	Data struct {
		Eid      string `json:"eid"`
		Username string `json:"username"`
	} `json:"data"`
}

type deleteEnterpriseRequest struct {
	Data struct {
		Eid            string `json:"eid"`
		EnterpriseType string `json:"enterprise_type"`
	} `json:"data"`
}

// ConfirmUserSignup records admin consent for a pending user.
func (h *Handler) ConfirmUserSignup(c *fiber.Ctx) error {
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

// DeleteEnterprise removes both enterprise index records.
func (h *Handler) DeleteEnterprise(c *fiber.Ctx) error {
	var req deleteEnterpriseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Data.Eid == "" {
		return enroll.ErrMissingFields()
	}
	enterpriseType, err := enroll.ParseEnterpriseType(req.Data.EnterpriseType)
	if err != nil {
		return err
	}

	err = h.enrollment.DeleteEnterprise(c.Context(), kernel.EnterpriseID(req.Data.Eid), enterpriseType)
	if err != nil {
		return err
	}
	return Success(c, "Enterprise deleted", nil)
}

// GetAllEnterprises lists every registered enterprise.
func (h *Handler) GetAllEnterprises(c *fiber.Ctx) error {
	enterprises, err := h.enrollment.GetAllEnterprises(c.Context())
	if err != nil {
		return err
	}
	return Success(c, "", toEnterpriseViews(enterprises))
}
