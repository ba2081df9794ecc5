package notifx

import (
	"context"
	"net/http"

	"github.com/beejcap/lsp-auth/pkg/errx"
)

// SMSMessage is a single text message.
type SMSMessage struct {
	// PhoneNumber is the E.164 destination.
	PhoneNumber string

	// Body is the message text.
	Body string
}

// SendResult reports the gateway's delivery status for one message.
type SendResult struct {
	// MessageID is the gateway-assigned identifier, when available.
	MessageID string

	// Accepted reports whether the gateway accepted the message.
	Accepted bool
}

// SMSSender is the black-box "send a text" capability. The OTP lifecycle
// manager depends only on this interface.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) (*SendResult, error)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("NOTIFX")

var (
	CodeSendFailed = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "SMS delivery failed")
)

func ErrSendFailed() *errx.Error { return ErrRegistry.New(CodeSendFailed) }
