package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/seatkeeper/internal/notification/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSendInvitationEmailRendersLink(t *testing.T) {
	provider := &email.RecordingProvider{}
	n := NewNotifier(zaptest.NewLogger(t), provider)

	n.SendInvitationEmail(context.Background(), InvitationEmail{
		ToEmail:          "a@x.com",
		InviterName:      "Olivia",
		InviterEmail:     "olivia@x.com",
		OrganizationName: "Acme",
		ResolutionLink:   "http://localhost:8080/api/invitations/123/accept",
	})

	msgs := provider.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"a@x.com"}, msgs[0].To)
	assert.Equal(t, "You're invited to join Acme", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "http://localhost:8080/api/invitations/123/accept")
	assert.Contains(t, msgs[0].Body, "Olivia")
}

func TestSendInvitationEmailSwallowsProviderErrors(t *testing.T) {
	provider := &email.RecordingProvider{Err: errors.New("smtp down")}
	n := NewNotifier(zaptest.NewLogger(t), provider)

	assert.NotPanics(t, func() {
		n.SendInvitationEmail(context.Background(), InvitationEmail{ToEmail: "a@x.com"})
	})
	assert.Empty(t, provider.Messages())
}

func TestSendInvitationEmailSkipsEmptyRecipient(t *testing.T) {
	provider := &email.RecordingProvider{}
	NewNotifier(zaptest.NewLogger(t), provider).SendInvitationEmail(context.Background(), InvitationEmail{})
	assert.Empty(t, provider.Messages())
}
