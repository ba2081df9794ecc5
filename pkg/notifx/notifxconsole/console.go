package notifxconsole

import (
	"context"

	"github.com/beejcap/lsp-auth/pkg/logx"
	"github.com/beejcap/lsp-auth/pkg/notifx"
)

// ConsoleProvider prints messages to the terminal via logx. Intended for
// development and testing.
type ConsoleProvider struct{}

// NewConsoleProvider creates a new console SMS provider.
func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendSMS logs the message instead of sending it.
func (p *ConsoleProvider) SendSMS(_ context.Context, msg notifx.SMSMessage) (*notifx.SendResult, error) {
	logx.WithFields(logx.Fields{
		"phone_number": msg.PhoneNumber,
		"body":         msg.Body,
	}).Info("notifx/console: sms sent (dev mode)")

	return &notifx.SendResult{MessageID: "console", Accepted: true}, nil
}
