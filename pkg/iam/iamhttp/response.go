package iamhttp

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/logx"
)

// envelope is the uniform response shape. Token rides beside data on the
// login and OTP-verify responses; message carries human-readable status.
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Token   string      `json:"token,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Success writes a 200 success envelope.
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(envelope{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// Created writes a 201 success envelope.
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(envelope{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// SuccessWithToken writes a 200 success envelope carrying a session token.
func SuccessWithToken(c *fiber.Ctx, message, token string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(envelope{
		Status:  "success",
		Message: message,
		Token:   token,
		Data:    data,
	})
}

// ErrorHandler is the application-wide fiber error handler. Registry errors
// map to their registered status and code; anything else becomes an opaque
// 500 so internals never leak.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var xerr *errx.Error
	if errors.As(err, &xerr) {
		if xerr.Type == errx.TypeInternal || xerr.Type == errx.TypeExternal {
			logx.WithFields(logx.Fields{
				"code":   xerr.Code,
				"path":   c.Path(),
				"method": c.Method(),
			}).WithError(xerr.Err).Error(xerr.Message)
		}
		return c.Status(xerr.HTTPStatus).JSON(envelope{
			Status:  "error",
			Message: xerr.Message,
			Code:    xerr.Code,
		})
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return c.Status(ferr.Code).JSON(envelope{
			Status:  "error",
			Message: ferr.Message,
		})
	}

	logx.WithFields(logx.Fields{
		"path":   c.Path(),
		"method": c.Method(),
	}).WithError(err).Error("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(envelope{
		Status:  "error",
		Message: "Internal server error",
	})
}
