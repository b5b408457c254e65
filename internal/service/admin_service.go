package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"physioheal/internal/domain"
	"physioheal/internal/events"
	"physioheal/internal/models"

	"github.com/rs/zerolog"
)

var ErrUnknownStatus = errors.New("unknown booking status")

// AdminService backs the staff-only booking operations.
type AdminService struct {
	reader   domain.SubmissionReader
	updater  domain.BookingStatusUpdater
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAdminService(reader domain.SubmissionReader, updater domain.BookingStatusUpdater, eventBus domain.EventPublisher, logger *zerolog.Logger) *AdminService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AdminService{reader: reader, updater: updater, eventBus: eventBus, logger: logger}
}

// UpdateStatus sets a booking's status and returns the stored record.
// The change is published so the spreadsheet row gets rewritten.
func (s *AdminService) UpdateStatus(ctx context.Context, id int64, status string) (*models.Booking, error) {
	status = strings.TrimSpace(status)
	if !models.IsBookingStatus(status) {
		return nil, fmt.Errorf("%q: %w", status, ErrUnknownStatus)
	}
	if err := s.updater.UpdateBookingStatus(ctx, id, status); err != nil {
		return nil, err
	}
	booking, err := s.reader.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", id).Str("status", status).Msg("Booking status updated")

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventBookingStatusChanged, events.NewBookingPayload(booking)); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("publish event error")
		}
	}
	return booking, nil
}
