package otp

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"regexp"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/kernel"
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

// TestCode is the fixed code returned for test-range mobile numbers. Those
// numbers never receive a real SMS, so automation can log in deterministically.
const TestCode = "123456"

// e164 enforces the strict international format: leading +, first digit
// nonzero, at most 15 digits total.
var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// codeFormat matches a submitted code: exactly CodeLength digits.
var codeFormat = regexp.MustCompile(`^\d{6}$`)

// ParseMobile validates an E.164 mobile number.
func ParseMobile(raw string) (kernel.MobileNumber, error) {
	if !e164.MatchString(raw) {
		return "", ErrInvalidFormat().WithDetail("mobile_number", raw)
	}
	return kernel.MobileNumber(raw), nil
}

// ParseCode validates a submitted one-time code. Non-digit input is a format
// error, not a mismatch.
func ParseCode(raw string) error {
	if !codeFormat.MatchString(raw) {
		return ErrInvalidFormat().WithDetail("otp_length", len(raw))
	}
	return nil
}

// GenerateCode produces a uniformly random numeric code of CodeLength digits,
// zero-padded. Uses crypto/rand; a randomness failure is surfaced, never
// papered over with a weaker source.
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", errx.Wrap(err, "otp code generation failed", errx.TypeInternal)
	}

	code := n.String()
	for len(code) < CodeLength {
		code = "0" + code
	}
	return code, nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("OTP")

var (
	CodeInvalidFormat     = ErrRegistry.Register("INVALID_FORMAT", errx.TypeValidation, http.StatusBadRequest, "Invalid mobile number or OTP format")
	CodeOtpNotFound       = ErrRegistry.Register("NOT_FOUND", errx.TypeAuthorization, http.StatusUnauthorized, "OTP not found. Please request a new OTP.")
	CodeOtpExpired        = ErrRegistry.Register("EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "OTP has expired. Please request a new OTP.")
	CodeOtpMismatch       = ErrRegistry.Register("MISMATCH", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid OTP")
	CodeDeliveryFailed    = ErrRegistry.Register("DELIVERY_FAILED", errx.TypeExternal, http.StatusBadGateway, "Could not deliver OTP. Please try again.")
	CodeMemberNotEligible = ErrRegistry.Register("MEMBER_NOT_ELIGIBLE", errx.TypeAuthorization, http.StatusForbidden, "User is not eligible for OTP login")
)

func ErrInvalidFormat() *errx.Error     { return ErrRegistry.New(CodeInvalidFormat) }
func ErrOtpNotFound() *errx.Error       { return ErrRegistry.New(CodeOtpNotFound) }
func ErrOtpExpired() *errx.Error        { return ErrRegistry.New(CodeOtpExpired) }
func ErrOtpMismatch() *errx.Error       { return ErrRegistry.New(CodeOtpMismatch) }
func ErrDeliveryFailed() *errx.Error    { return ErrRegistry.New(CodeDeliveryFailed) }
func ErrMemberNotEligible() *errx.Error { return ErrRegistry.New(CodeMemberNotEligible) }
