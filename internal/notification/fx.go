package notification

import (
	"strings"

	"github.com/smallbiznis/seatkeeper/internal/config"
	"github.com/smallbiznis/seatkeeper/internal/notification/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewEmailProvider),
	fx.Provide(NewNotifier),
)

func NewEmailProvider(cfg config.Config, log *zap.Logger) email.Provider {
	if strings.TrimSpace(cfg.Email.SMTPHost) == "" {
		log.Info("smtp host not configured, invitation emails are disabled")
		return &email.NoOpProvider{}
	}
	return email.NewSMTP(email.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}
