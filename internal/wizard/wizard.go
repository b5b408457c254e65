package wizard

import (
	"fmt"
	"strings"
	"time"

	"physioheal/internal/models"
)

// Field names accepted by Set, matching the JSON names of models.BookingForm.
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldService   = "service"
	FieldDate      = "date"
	FieldTime      = "time"
	FieldMessage   = "message"
)

// fieldOrder is the order in which the modal lays out its inputs.
var fieldOrder = []string{
	FieldFirstName, FieldLastName, FieldEmail, FieldPhone,
	FieldService, FieldDate, FieldTime, FieldMessage,
}

// Wizard drives one booking session through its steps.
// It is not safe for concurrent use; callers serialize access per session.
type Wizard struct {
	state *models.WizardState
	now   func() time.Time
}

// NewState returns a fresh session positioned at the first step with the modal open.
func NewState(sessionID string, now time.Time) *models.WizardState {
	return &models.WizardState{
		SessionID: sessionID,
		Step:      models.StepPersonalInfo,
		Open:      true,
		UpdatedAt: now,
	}
}

// Load wraps a stored state. A nil clock means time.Now.
func Load(state *models.WizardState, now func() time.Time) *Wizard {
	if now == nil {
		now = time.Now
	}
	if state.Step == "" {
		state.Step = models.StepPersonalInfo
	}
	return &Wizard{state: state, now: now}
}

func (w *Wizard) State() *models.WizardState {
	return w.state
}

// Set assigns a single field. Rejected values leave the form unchanged.
func (w *Wizard) Set(field, value string) error {
	return w.SetFields(map[string]string{field: value})
}

// SetFields validates every value first and applies them only if all pass.
func (w *Wizard) SetFields(fields map[string]string) error {
	if err := w.editable(); err != nil {
		return err
	}

	for name := range fields {
		if !knownField(name) {
			return fmt.Errorf("%s: %w", name, ErrUnknownField)
		}
	}

	form := w.state.Form
	for _, name := range fieldOrder {
		value, ok := fields[name]
		if !ok {
			continue
		}
		if exceeds(value, fieldLimit(name)) {
			return fmt.Errorf("%s: %w", name, ErrFieldTooLong)
		}
		if err := w.assign(&form, name, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	w.state.Form = form
	w.touch()
	return nil
}

func (w *Wizard) assign(form *models.BookingForm, field, value string) error {
	switch field {
	case FieldFirstName:
		form.FirstName = value
	case FieldLastName:
		form.LastName = value
	case FieldEmail:
		form.Email = value
	case FieldPhone:
		form.Phone = value
	case FieldService:
		if value != "" && !models.IsBookingService(value) {
			return ErrUnknownService
		}
		form.Service = value
	case FieldDate:
		if value != "" {
			if err := w.checkDate(value); err != nil {
				return err
			}
		}
		form.Date = value
	case FieldTime:
		if value != "" && !models.IsTimeSlot(value) {
			return ErrUnknownTimeSlot
		}
		form.Time = value
	case FieldMessage:
		form.Message = value
	default:
		return ErrUnknownField
	}
	return nil
}

// Next advances one step when the current step's gate passes.
func (w *Wizard) Next() error {
	if !w.state.Open {
		return ErrSessionClosed
	}
	if w.state.Submitting {
		return ErrSubmissionInFlight
	}
	switch w.state.Step {
	case models.StepPersonalInfo:
		if errs := personalInfoErrors(w.state.Form); len(errs) > 0 {
			return &ValidationError{Fields: errs}
		}
		w.state.Step = models.StepServiceAndDate
	case models.StepServiceAndDate:
		if errs := serviceAndDateErrors(w.state.Form); len(errs) > 0 {
			return &ValidationError{Fields: errs}
		}
		w.state.Step = models.StepConfirmation
	default:
		return ErrInvalidTransition
	}
	w.touch()
	return nil
}

// Back returns to the previous step without any checks.
func (w *Wizard) Back() error {
	if !w.state.Open {
		return ErrSessionClosed
	}
	if w.state.Submitting {
		return ErrSubmissionInFlight
	}
	switch w.state.Step {
	case models.StepServiceAndDate:
		w.state.Step = models.StepPersonalInfo
	case models.StepConfirmation:
		w.state.Step = models.StepServiceAndDate
	default:
		return ErrInvalidTransition
	}
	w.touch()
	return nil
}

// Confirm re-checks the whole form and marks the session as submitting.
// The returned booking is ready for the store; the caller must follow up
// with Complete or Fail.
func (w *Wizard) Confirm() (*models.Booking, error) {
	if !w.state.Open {
		return nil, ErrSessionClosed
	}
	if w.state.Step != models.StepConfirmation {
		return nil, ErrInvalidTransition
	}
	if w.state.Submitting {
		return nil, ErrSubmissionInFlight
	}

	form := w.state.Form
	errs := append(personalInfoErrors(form), serviceAndDateErrors(form)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	if !models.IsBookingService(form.Service) {
		return nil, fmt.Errorf("%s: %w", FieldService, ErrUnknownService)
	}
	if !models.IsTimeSlot(form.Time) {
		return nil, fmt.Errorf("%s: %w", FieldTime, ErrUnknownTimeSlot)
	}
	if err := w.checkDate(form.Date); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldDate, err)
	}
	date, _ := time.Parse(models.DateLayout, form.Date)

	w.state.Submitting = true
	w.touch()

	return &models.Booking{
		SessionID: w.state.SessionID,
		FirstName: strings.TrimSpace(form.FirstName),
		LastName:  strings.TrimSpace(form.LastName),
		Email:     strings.TrimSpace(form.Email),
		Phone:     strings.TrimSpace(form.Phone),
		Service:   form.Service,
		Date:      date,
		TimeSlot:  form.Time,
		Message:   form.Message,
		Status:    models.StatusPending,
	}, nil
}

// Complete records a stored booking and enters the submitted screen.
func (w *Wizard) Complete(bookingID int64) Notification {
	w.state.Submitting = false
	w.state.Step = models.StepSubmitted
	w.state.BookingID = bookingID
	w.touch()
	return BookingConfirmed
}

// Fail keeps the form on the confirmation step for a manual retry.
func (w *Wizard) Fail() Notification {
	w.state.Submitting = false
	w.touch()
	return BookingFailed
}

// Reset clears the form, returns to the first step and closes the modal.
func (w *Wizard) Reset() {
	w.state.Step = models.StepPersonalInfo
	w.state.Form = models.BookingForm{}
	w.state.Submitting = false
	w.state.Open = false
	w.state.BookingID = 0
	w.touch()
}

func (w *Wizard) editable() error {
	if !w.state.Open {
		return ErrSessionClosed
	}
	if w.state.Submitting {
		return ErrSubmissionInFlight
	}
	if w.state.Step == models.StepSubmitted {
		return ErrInvalidTransition
	}
	return nil
}

// checkDate enforces the date input's format and its "min = today" bound.
// Today is the current UTC calendar date.
func (w *Wizard) checkDate(value string) error {
	date, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return ErrInvalidDate
	}
	today := Today(w.now())
	if date.Before(today) {
		return ErrPastDate
	}
	return nil
}

// Today truncates now to the start of its UTC calendar day.
func Today(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (w *Wizard) touch() {
	w.state.UpdatedAt = w.now()
}

func personalInfoErrors(f models.BookingForm) []FieldError {
	var errs []FieldError
	if blank(f.FirstName) {
		errs = append(errs, missing(FieldFirstName, "First Name", "First Name is required"))
	}
	if blank(f.Phone) {
		errs = append(errs, missing(FieldPhone, "Phone Number", "Phone Number is required"))
	}
	return errs
}

func serviceAndDateErrors(f models.BookingForm) []FieldError {
	var errs []FieldError
	if blank(f.Service) {
		errs = append(errs, missing(FieldService, "Service", "Service selection is required"))
	}
	if blank(f.Date) {
		errs = append(errs, missing(FieldDate, "Date", "Preferred Date is required"))
	}
	if blank(f.Time) {
		errs = append(errs, missing(FieldTime, "Time", "Preferred Time is required"))
	}
	if blank(f.Message) {
		errs = append(errs, missing(FieldMessage, "Condition", "Condition description is required"))
	}
	return errs
}

func knownField(name string) bool {
	for _, f := range fieldOrder {
		if f == name {
			return true
		}
	}
	return false
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
