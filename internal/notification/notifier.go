package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/seatkeeper/internal/notification/email"
	"go.uber.org/zap"
)

const templateInviteMember = "invite_member"

type InvitationEmail struct {
	ToEmail          string
	InviterName      string
	InviterEmail     string
	OrganizationName string
	ResolutionLink   string
}

// Notifier sends user-facing notifications. Delivery failures are logged and
// never returned to the caller.
type Notifier interface {
	SendInvitationEmail(ctx context.Context, msg InvitationEmail)
}

type emailNotifier struct {
	log      *zap.Logger
	provider email.Provider
}

func NewNotifier(log *zap.Logger, provider email.Provider) Notifier {
	return &emailNotifier{
		log:      log.Named("notification"),
		provider: provider,
	}
}

func (n *emailNotifier) SendInvitationEmail(ctx context.Context, msg InvitationEmail) {
	to := strings.TrimSpace(msg.ToEmail)
	if to == "" {
		n.log.Warn("invitation email skipped: empty recipient")
		return
	}

	body, err := email.Render(templateInviteMember, msg)
	if err != nil {
		n.log.Error("failed to render invitation email", zap.Error(err))
		return
	}

	subject := "You're invited to join a team"
	if name := strings.TrimSpace(msg.OrganizationName); name != "" {
		subject = fmt.Sprintf("You're invited to join %s", name)
	}

	if err := n.provider.Send(ctx, []string{to}, subject, body); err != nil {
		n.log.Warn("failed to send invitation email",
			zap.String("organization", msg.OrganizationName),
			zap.Error(err),
		)
	}
}
