package email

import (
	"strings"

	"github.com/smallbiznis/accessd/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(newInvitationMailer),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if strings.TrimSpace(cfg.Email.SMTPHost) == "" {
		log.Info("smtp host not configured, invitation mail disabled")
		return NewNoOp(log)
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}

func newInvitationMailer(provider Provider, cfg config.Config) *InvitationMailer {
	return NewInvitationMailer(provider, cfg.InviteBaseURL)
}
