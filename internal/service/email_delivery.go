package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/pkg/brevo"
)

// EmailSender delivers a transactional template to one recipient.
type EmailSender interface {
	SendTemplate(ctx context.Context, template string, to brevo.Recipient, params map[string]interface{}) error
}

// LogEmailSender is used when no email provider is configured; it only logs.
type LogEmailSender struct {
	logger zerolog.Logger
}

// NewLogEmailSender constructs a logging sender.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "email_delivery").Logger()}
}

// SendTemplate logs the email and returns nil to indicate success.
func (l *LogEmailSender) SendTemplate(ctx context.Context, template string, to brevo.Recipient, params map[string]interface{}) error {
	l.logger.Info().
		Str("template", template).
		Str("recipient", maskEmailAddress(to.Email)).
		Int("params", len(params)).
		Msg("email delivered to log sink")
	return nil
}
