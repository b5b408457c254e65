package models

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	StepPersonalInfo   = "personal_info"
	StepServiceAndDate = "service_and_date"
	StepConfirmation   = "confirmation"
	StepSubmitted      = "submitted"
)

const (
	EntityBooking = "booking"
	EntityContact = "contact"
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// DateLayout is the wire format of the preferred appointment date.
const DateLayout = "2006-01-02"

// BookingServices are the offerings selectable in the booking wizard, in display order.
var BookingServices = []string{
	"Sports Injury Recovery",
	"Pain Management",
	"Manual Therapy",
	"Injury Prevention",
	"Post-Surgery Rehabilitation",
	"Chronic Pain Treatment",
}

// TimeSlots are the bookable appointment times, in display order.
var TimeSlots = []string{
	"9:00 AM", "10:00 AM", "11:00 AM", "12:00 PM",
	"2:00 PM", "3:00 PM", "4:00 PM", "5:00 PM",
}

const (
	// DefaultSessionTTL время жизни сессии мастера записи в Redis
	DefaultSessionTTL = 2 * time.Hour

	// DefaultResetDelay задержка перед сбросом и закрытием окна после записи
	DefaultResetDelay = 3 * time.Second

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// RateLimitRequests количество запросов формы в окне
	RateLimitRequests = 20

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = time.Minute

	// DefaultListRangeDays период выборки заявок по умолчанию
	DefaultListRangeDays = 30
)

// IsBookingService reports whether name is one of the bookable offerings.
func IsBookingService(name string) bool {
	for _, s := range BookingServices {
		if s == name {
			return true
		}
	}
	return false
}

// IsTimeSlot reports whether slot is one of the bookable times.
func IsTimeSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// IsBookingStatus reports whether status is a known booking status.
func IsBookingStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}
