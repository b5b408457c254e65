package wizard

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Лимиты длины полей, в символах
const (
	MaxFieldLength   = 200
	MaxMessageLength = 2000
)

var (
	ErrInvalidDate        = errors.New("date must be in YYYY-MM-DD format")
	ErrPastDate           = errors.New("date must not be earlier than today")
	ErrUnknownService     = errors.New("unknown service")
	ErrUnknownTimeSlot    = errors.New("unknown time slot")
	ErrUnknownField       = errors.New("unknown field")
	ErrInvalidTransition  = errors.New("transition not allowed from current step")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrSessionClosed      = errors.New("session is closed")
	ErrFieldTooLong       = errors.New("value too long")
)

// FieldError describes one failed form field.
type FieldError struct {
	Field   string `json:"field"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notification converts the field error into a destructive toast.
func (e FieldError) Notification() Notification {
	return Notification{Title: e.Title, Description: e.Message, Severity: SeverityDestructive}
}

// ValidationError is returned when a step gate or form check fails.
// Fields keep the order in which the form presents them.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "validation failed: " + strings.Join(names, ", ")
}

// Notifications returns one toast per failed field.
func (e *ValidationError) Notifications() []Notification {
	out := make([]Notification, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Notification())
	}
	return out
}

func missing(field, label, message string) FieldError {
	return FieldError{Field: field, Title: "Missing " + label, Message: message}
}

func tooLong(field, label string, max int) FieldError {
	return FieldError{
		Field:   field,
		Title:   label + " Too Long",
		Message: fmt.Sprintf("%s must be at most %d characters", label, max),
	}
}

// fieldLimit returns the rune limit for a form field.
func fieldLimit(field string) int {
	if field == FieldMessage {
		return MaxMessageLength
	}
	return MaxFieldLength
}

func exceeds(value string, max int) bool {
	return utf8.RuneCountInString(value) > max
}
