package service

import (
	"context"
	"fmt"

	"physioheal/internal/domain"
	"physioheal/internal/events"
	"physioheal/internal/metrics"
	"physioheal/internal/models"
	"physioheal/internal/wizard"

	"github.com/rs/zerolog"
)

// ContactResult is the form after a submit attempt.
// Form is cleared on success and kept as sent on failure.
type ContactResult struct {
	Form          models.ContactForm    `json:"form"`
	Notifications []wizard.Notification `json:"notifications"`
	ComposeURL    string                `json:"compose_url,omitempty"`
}

type ContactOptions struct {
	ClinicEmail    string
	ComposeSubject string
	ComposeLink    bool
}

type ContactService struct {
	store    domain.SubmissionStore
	eventBus domain.EventPublisher
	opts     ContactOptions
	guard    wizard.Guard
	logger   *zerolog.Logger
}

func NewContactService(store domain.SubmissionStore, eventBus domain.EventPublisher, opts ContactOptions, logger *zerolog.Logger) *ContactService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ContactService{
		store:    store,
		eventBus: eventBus,
		opts:     opts,
		logger:   logger,
	}
}

// Submit validates and stores one contact form submission. instanceKey
// identifies the form instance; a second submit with the same key while
// the first is in flight gets wizard.ErrSubmissionInFlight. An empty key
// means the instance is unknown and no guard applies.
func (s *ContactService) Submit(ctx context.Context, instanceKey string, form models.ContactForm) (*ContactResult, error) {
	if instanceKey != "" {
		if !s.guard.TryAcquire(instanceKey) {
			metrics.IncSubmission(formContact, metrics.OutcomeRejected)
			return nil, wizard.ErrSubmissionInFlight
		}
		defer s.guard.Release(instanceKey)
	}

	if err := wizard.ValidateContact(form); err != nil {
		metrics.IncSubmission(formContact, metrics.OutcomeInvalid)
		return nil, err
	}

	ctx, cancel := detach(ctx, submitTimeout)
	defer cancel()

	msg := wizard.NewContactMessage(form)
	if err := s.store.SaveContact(ctx, msg); err != nil {
		metrics.IncSubmission(formContact, metrics.OutcomeFailed)
		s.logger.Error().Err(err).Msg("Failed to store contact message")
		return &ContactResult{
			Form:          form,
			Notifications: []wizard.Notification{wizard.MessageFailed},
		}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	metrics.IncSubmission(formContact, metrics.OutcomeSuccess)
	s.logger.Info().Int64("contact_id", msg.ID).Msg("Contact message stored")

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventContactSubmitted, events.NewContactPayload(msg)); err != nil {
			s.logger.Error().Err(err).Int64("contact_id", msg.ID).Msg("publish event error")
		}
	}

	res := &ContactResult{Notifications: []wizard.Notification{wizard.MessageSent}}
	if s.opts.ComposeLink && s.opts.ClinicEmail != "" {
		res.ComposeURL = wizard.ComposeURL(s.opts.ClinicEmail, s.opts.ComposeSubject, form)
	}
	return res, nil
}
