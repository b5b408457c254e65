package domain

import (
	"context"
	"time"

	"physioheal/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SubmissionStore durably saves finished form submissions.
// On success the record's ID and CreatedAt are filled in.
type SubmissionStore interface {
	SaveContact(ctx context.Context, msg *models.ContactMessage) error
	SaveBooking(ctx context.Context, booking *models.Booking) error
}

// SubmissionReader backs the admin listings and exports.
type SubmissionReader interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetContact(ctx context.Context, id int64) (*models.ContactMessage, error)
	ListBookings(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	ListContacts(ctx context.Context, start, end time.Time) ([]*models.ContactMessage, error)
}

// BookingStatusUpdater changes the status of a stored booking.
// An unknown id yields an error wrapping database.ErrNotFound.
type BookingStatusUpdater interface {
	UpdateBookingStatus(ctx context.Context, id int64, status string) error
}

type Repository interface {
	SubmissionStore
	SubmissionReader
	BookingStatusUpdater
}

// StateRepository keeps booking wizard sessions between requests.
// GetState returns nil, nil for an unknown or expired session.
type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*models.WizardState, error)
	SetState(ctx context.Context, state *models.WizardState) error
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	AppendContact(ctx context.Context, msg *models.ContactMessage) error
}

type SyncWorker interface {
	EnqueueBooking(ctx context.Context, taskType string, booking *models.Booking) error
	EnqueueContact(ctx context.Context, msg *models.ContactMessage) error
}

// StaffNotifier tells clinic staff about new submissions.
type StaffNotifier interface {
	NotifyBooking(ctx context.Context, booking *models.Booking) error
	NotifyContact(ctx context.Context, msg *models.ContactMessage) error
}
