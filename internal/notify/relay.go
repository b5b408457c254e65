package notify

import (
	"context"
	"errors"

	"physioheal/internal/models"
	"physioheal/internal/wizard"
)

// ContactRelay forwards contact form messages to the clinic inbox.
type ContactRelay struct {
	sender  EmailSender
	to      string
	subject string
}

func NewContactRelay(sender EmailSender, clinicEmail, subject string) *ContactRelay {
	return &ContactRelay{sender: sender, to: clinicEmail, subject: subject}
}

func (r *ContactRelay) Relay(ctx context.Context, msg *models.ContactMessage) error {
	if msg == nil {
		return errors.New("contact message is nil")
	}
	if r.sender == nil || r.to == "" {
		return nil
	}

	subject := r.subject
	if msg.Service != "" {
		subject += ": " + msg.Service
	}
	return r.sender.Send(ctx, EmailMessage{
		To:      r.to,
		ReplyTo: msg.Email,
		Subject: subject,
		Body:    wizard.MessageBody(msg.Name, msg.Email, msg.Phone, msg.Message),
	})
}
