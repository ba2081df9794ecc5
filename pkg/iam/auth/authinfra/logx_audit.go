package authinfra

import (
	"context"

	"github.com/beejcap/lsp-auth/pkg/iam/auth"
	"github.com/beejcap/lsp-auth/pkg/logx"
)

// LogAuditService writes authorization decisions to the structured log.
type LogAuditService struct{}

func NewLogAuditService() *LogAuditService { return &LogAuditService{} }

func (s *LogAuditService) Record(_ context.Context, event auth.AuditEvent) {
	entry := logx.WithFields(logx.Fields{
		"action":   event.Action,
		"username": event.Username.String(),
		"eid":      event.Eid.String(),
		"allowed":  event.Allowed,
	})
	if event.Allowed {
		entry.Debug("authorization decision")
		return
	}
	entry.WithField("reason", event.Reason).Warn("authorization denied")
}
