package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"physioheal/internal/domain"
	"physioheal/internal/events"
	"physioheal/internal/metrics"
	"physioheal/internal/models"
	"physioheal/internal/wizard"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	formBooking = "booking"
	formContact = "contact"

	resetTimeout  = 5 * time.Second
	submitTimeout = 15 * time.Second
)

// Stopper is the part of *time.Timer the reset scheduler needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Stopper

func timeAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Result is the session after an operation plus the toasts to show.
type Result struct {
	State         *models.WizardState   `json:"state"`
	Notifications []wizard.Notification `json:"notifications"`
}

type BookingService struct {
	states     *StateService
	store      domain.SubmissionStore
	eventBus   domain.EventPublisher
	resetDelay time.Duration
	logger     *zerolog.Logger

	guard wizard.Guard
	locks sync.Map // session id -> *sync.Mutex

	timersMu sync.Mutex
	timers   map[string]Stopper

	now       func() time.Time
	afterFunc AfterFunc
	newID     func() string
}

func NewBookingService(states *StateService, store domain.SubmissionStore, eventBus domain.EventPublisher, resetDelay time.Duration, logger *zerolog.Logger) *BookingService {
	if resetDelay <= 0 {
		resetDelay = models.DefaultResetDelay
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		states:     states,
		store:      store,
		eventBus:   eventBus,
		resetDelay: resetDelay,
		logger:     logger,
		timers:     make(map[string]Stopper),
		now:        time.Now,
		afterFunc:  timeAfterFunc,
		newID:      uuid.NewString,
	}
}

// Open starts a new session on the first step with the modal shown.
func (s *BookingService) Open(ctx context.Context) (*Result, error) {
	state := wizard.NewState(s.newID(), s.now())
	if err := s.states.SaveSession(ctx, state); err != nil {
		return nil, err
	}
	metrics.IncTransition(state.Step)
	return &Result{State: state}, nil
}

func (s *BookingService) Get(ctx context.Context, sessionID string) (*Result, error) {
	state, err := s.states.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Result{State: state}, nil
}

// Set applies field edits. Either all values are accepted or none.
func (s *BookingService) Set(ctx context.Context, sessionID string, fields map[string]string) (*Result, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.SetFields(fields)
	})
}

func (s *BookingService) Next(ctx context.Context, sessionID string) (*Result, error) {
	res, err := s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.Next()
	})
	if err == nil {
		metrics.IncTransition(res.State.Step)
	}
	return res, err
}

func (s *BookingService) Back(ctx context.Context, sessionID string) (*Result, error) {
	res, err := s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.Back()
	})
	if err == nil {
		metrics.IncTransition(res.State.Step)
	}
	return res, err
}

// Confirm submits the booking to the store. At most one attempt per call;
// on store failure the session stays on the confirmation step and the
// error wraps ErrSubmissionFailed alongside a non-nil Result.
// Once started, the submission outlives the caller's context so the
// session never stays stuck in the submitting state.
func (s *BookingService) Confirm(ctx context.Context, sessionID string) (*Result, error) {
	ctx, cancel := detach(ctx, submitTimeout)
	defer cancel()

	if !s.guard.TryAcquire(sessionID) {
		metrics.IncSubmission(formBooking, metrics.OutcomeRejected)
		return nil, wizard.ErrSubmissionInFlight
	}
	defer s.guard.Release(sessionID)

	booking, err := s.begin(ctx, sessionID)
	if err != nil {
		var verr *wizard.ValidationError
		switch {
		case errors.As(err, &verr):
			metrics.IncSubmission(formBooking, metrics.OutcomeInvalid)
		case errors.Is(err, wizard.ErrSubmissionInFlight):
			metrics.IncSubmission(formBooking, metrics.OutcomeRejected)
		}
		return nil, err
	}

	saveErr := s.store.SaveBooking(ctx, booking)

	unlock := s.lock(sessionID)
	defer unlock()

	state, err := s.states.GetSession(ctx, sessionID)
	if err != nil {
		// Сессию закрыли во время отправки
		if saveErr == nil {
			s.logger.Info().Int64("booking_id", booking.ID).Str("session_id", sessionID).Msg("Booking stored after session was closed")
			s.publishBooking(booking)
			metrics.IncSubmission(formBooking, metrics.OutcomeSuccess)
		}
		return nil, err
	}
	w := wizard.Load(state, s.now)

	if saveErr != nil {
		n := w.Fail()
		metrics.IncSubmission(formBooking, metrics.OutcomeFailed)
		s.logger.Error().Err(saveErr).Str("session_id", sessionID).Msg("Failed to store booking")
		if err := s.states.SaveSession(ctx, w.State()); err != nil {
			return nil, err
		}
		return &Result{State: w.State(), Notifications: []wizard.Notification{n}},
			fmt.Errorf("%w: %w", ErrSubmissionFailed, saveErr)
	}

	n := w.Complete(booking.ID)
	if err := s.states.SaveSession(ctx, w.State()); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to save submitted session")
	}
	metrics.IncSubmission(formBooking, metrics.OutcomeSuccess)
	metrics.IncTransition(models.StepSubmitted)
	s.logger.Info().Int64("booking_id", booking.ID).Str("service", booking.Service).Msg("Booking submitted")

	s.scheduleReset(sessionID, booking.ID)
	s.publishBooking(booking)

	return &Result{State: w.State(), Notifications: []wizard.Notification{n}}, nil
}

// Close tears the session down and cancels a pending auto-reset.
func (s *BookingService) Close(ctx context.Context, sessionID string) error {
	s.cancelReset(sessionID)

	unlock := s.lock(sessionID)
	defer unlock()

	if _, err := s.states.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.states.ClearSession(ctx, sessionID); err != nil {
		return err
	}
	s.locks.Delete(sessionID)
	return nil
}

// Shutdown stops every pending reset timer.
func (s *BookingService) Shutdown() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// begin moves the session into the submitting state and returns the booking to store.
func (s *BookingService) begin(ctx context.Context, sessionID string) (*models.Booking, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	state, err := s.states.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	w := wizard.Load(state, s.now)
	booking, err := w.Confirm()
	if err != nil {
		return nil, err
	}
	if err := s.states.SaveSession(ctx, w.State()); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) mutate(ctx context.Context, sessionID string, fn func(w *wizard.Wizard) error) (*Result, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	state, err := s.states.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	w := wizard.Load(state, s.now)
	if err := fn(w); err != nil {
		return nil, err
	}
	if err := s.states.SaveSession(ctx, w.State()); err != nil {
		return nil, err
	}
	return &Result{State: w.State()}, nil
}

// detach keeps ctx values but drops its cancellation, bounded by timeout.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *BookingService) lock(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *BookingService) scheduleReset(sessionID string, bookingID int64) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	s.timers[sessionID] = s.afterFunc(s.resetDelay, func() {
		s.fireReset(sessionID, bookingID)
	})
}

func (s *BookingService) cancelReset(sessionID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

// fireReset returns a submitted session to an empty, closed first step.
func (s *BookingService) fireReset(sessionID string, bookingID int64) {
	s.timersMu.Lock()
	delete(s.timers, sessionID)
	s.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	unlock := s.lock(sessionID)
	defer unlock()

	state, err := s.states.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Auto reset failed")
		}
		return
	}
	if !state.IsSubmitted() || state.BookingID != bookingID {
		return
	}

	w := wizard.Load(state, s.now)
	w.Reset()
	if err := s.states.SaveSession(ctx, w.State()); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Auto reset failed")
		return
	}
	metrics.IncTransition(models.StepPersonalInfo)

	if s.eventBus != nil {
		payload := events.SessionResetPayload{SessionID: sessionID, BookingID: bookingID}
		if err := s.eventBus.PublishJSON(events.EventSessionReset, payload); err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("publish event error")
		}
	}
}

func (s *BookingService) publishBooking(booking *models.Booking) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(events.EventBookingSubmitted, events.NewBookingPayload(booking)); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
