package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/repository"
	"github.com/noah-isme/screening-api/pkg/brevo"
)

// Notification template keys.
const (
	TemplateApplicationReceived = "application_received"
	TemplatePrescreenPassed     = "prescreen_passed"
	TemplateTestInvitation      = "test_invitation"
	TemplateTestReminder        = "test_reminder_24h"
	TemplateTestExpired         = "test_expired"
	TemplateTestFinalChance     = "test_final_chance"
	TemplateTestReceived        = "test_received"
	TemplateUnderReview         = "under_review"
	TemplateNegotiationOffer    = "negotiation_offer"
	TemplateRateAgreed          = "rate_agreed"
	TemplateApproved            = "approved"
	TemplateRejected            = "rejected"
	TemplateWaitlisted          = "waitlisted"
	TemplateRequestMoreInfo     = "request_more_info"
)

// Notification is one templated email to an applicant.
type Notification struct {
	ApplicationID uint
	Template      string
	Email         string
	Name          string
	Params        map[string]interface{}
}

// Notifier sends applicant notifications. Send never fails the caller; it reports delivery.
type Notifier interface {
	Send(ctx context.Context, notification Notification) bool
}

type notifier struct {
	sender EmailSender
	logs   repository.NotificationLogRepository
	logger zerolog.Logger
}

// NewNotifier constructs a notifier. A nil sender falls back to the log sink.
func NewNotifier(sender EmailSender, logs repository.NotificationLogRepository, logger zerolog.Logger) Notifier {
	if sender == nil {
		sender = NewLogEmailSender(logger)
	}
	return &notifier{
		sender: sender,
		logs:   logs,
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *notifier) Send(ctx context.Context, notification Notification) bool {
	params := map[string]interface{}{"name": notification.Name}
	for key, value := range notification.Params {
		params[key] = value
	}

	err := n.sender.SendTemplate(ctx, notification.Template, brevo.Recipient{Email: notification.Email, Name: notification.Name}, params)
	delivered := err == nil

	entry := models.NotificationLog{
		Template:  notification.Template,
		Recipient: maskEmailAddress(notification.Email),
		Delivered: delivered,
	}
	if notification.ApplicationID != 0 {
		id := notification.ApplicationID
		entry.ApplicationID = &id
	}

	result := "sent"
	if err != nil {
		result = "failed"
		entry.Error = err.Error()
		n.logger.Warn().Err(err).
			Str("template", notification.Template).
			Uint("application_id", notification.ApplicationID).
			Msg("notification delivery failed")
	}
	observability.Notifications().WithLabelValues(notification.Template, result).Inc()

	if n.logs != nil {
		if logErr := n.logs.Create(ctx, &entry); logErr != nil {
			n.logger.Warn().Err(logErr).Msg("failed to record notification log")
		}
	}

	return delivered
}
