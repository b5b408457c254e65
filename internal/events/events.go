package events

import (
	"encoding/json"
	"sync"
	"time"

	"physioheal/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingSubmitted = "booking_submitted"
	EventContactSubmitted = "contact_submitted"
	EventSessionReset     = "booking_session_reset"

	// EventBookingStatusChanged carries a BookingEventPayload with the new status.
	EventBookingStatusChanged = "booking_status_changed"
)

// BookingEventPayload is the booking snapshot handed to subscribers.
type BookingEventPayload struct {
	BookingID int64     `json:"booking_id"`
	SessionID string    `json:"session_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone"`
	Service   string    `json:"service"`
	Date      string    `json:"date"`
	TimeSlot  string    `json:"time_slot"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func NewBookingPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID: b.ID,
		SessionID: b.SessionID,
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Email:     b.Email,
		Phone:     b.Phone,
		Service:   b.Service,
		Date:      b.Date.Format(models.DateLayout),
		TimeSlot:  b.TimeSlot,
		Message:   b.Message,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}
}

// Booking rebuilds the model from the payload.
func (p BookingEventPayload) Booking() *models.Booking {
	date, _ := time.Parse(models.DateLayout, p.Date)
	return &models.Booking{
		ID:        p.BookingID,
		SessionID: p.SessionID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
		Service:   p.Service,
		Date:      date,
		TimeSlot:  p.TimeSlot,
		Message:   p.Message,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

type ContactEventPayload struct {
	ContactID int64     `json:"contact_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewContactPayload(m *models.ContactMessage) ContactEventPayload {
	return ContactEventPayload{
		ContactID: m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Service:   m.Service,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}

func (p ContactEventPayload) Contact() *models.ContactMessage {
	return &models.ContactMessage{
		ID:        p.ContactID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Service:   p.Service,
		Message:   p.Message,
		CreatedAt: p.CreatedAt,
	}
}

// SessionResetPayload is published when a submitted wizard auto-resets.
type SessionResetPayload struct {
	SessionID string `json:"session_id"`
	BookingID int64  `json:"booking_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger, if set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. A failing handler does
// not stop the others.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&ev)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
