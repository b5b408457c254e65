package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"physioheal/internal/events"
	"physioheal/internal/models"
	"physioheal/internal/repository"
	"physioheal/internal/wizard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestBookingService(t *testing.T) (*BookingService, *mockStore, *mockPublisher, *manualTimers) {
	t.Helper()
	store := new(mockStore)
	pub := new(mockPublisher)
	timers := &manualTimers{}

	states := NewStateService(repository.NewMemoryStateRepository(time.Hour), nil)
	svc := NewBookingService(states, store, pub, 3*time.Second, nil)
	svc.now = func() time.Time { return fixedNow }
	svc.afterFunc = timers.AfterFunc
	svc.newID = func() string { return "sess-1" }
	return svc, store, pub, timers
}

func fillToConfirmation(t *testing.T, svc *BookingService) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Set(ctx, "sess-1", map[string]string{
		wizard.FieldFirstName: "Jane",
		wizard.FieldLastName:  "Doe",
		wizard.FieldPhone:     "555-0100",
	})
	require.NoError(t, err)
	_, err = svc.Next(ctx, "sess-1")
	require.NoError(t, err)
	_, err = svc.Set(ctx, "sess-1", map[string]string{
		wizard.FieldService: "Manual Therapy",
		wizard.FieldDate:    "2026-03-12",
		wizard.FieldTime:    "10:00 AM",
		wizard.FieldMessage: "Lower back pain",
	})
	require.NoError(t, err)
	res, err := svc.Next(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, models.StepConfirmation, res.State.Step)
}

func TestBookingService_OpenAndGet(t *testing.T) {
	svc, _, _, _ := newTestBookingService(t)
	ctx := context.Background()

	res, err := svc.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.State.SessionID)
	assert.Equal(t, models.StepPersonalInfo, res.State.Step)
	assert.True(t, res.State.Open)

	got, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, res.State.Step, got.State.Step)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBookingService_NextGate(t *testing.T) {
	svc, _, _, _ := newTestBookingService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx)
	require.NoError(t, err)

	_, err = svc.Next(ctx, "sess-1")
	var verr *wizard.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "Missing First Name", verr.Fields[0].Title)
	assert.Equal(t, "Missing Phone Number", verr.Fields[1].Title)

	got, _ := svc.Get(ctx, "sess-1")
	assert.Equal(t, models.StepPersonalInfo, got.State.Step)
}

func TestBookingService_BackAndRejectedEdit(t *testing.T) {
	svc, _, _, _ := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	_, err := svc.Set(ctx, "sess-1", map[string]string{wizard.FieldDate: "2026-03-01"})
	assert.ErrorIs(t, err, wizard.ErrPastDate)

	res, err := svc.Back(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceAndDate, res.State.Step)
	assert.Equal(t, "2026-03-12", res.State.Form.Date)
}

func TestBookingService_ConfirmSuccess(t *testing.T) {
	svc, store, pub, timers := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	store.On("SaveBooking", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
		return b.FirstName == "Jane" && b.Service == "Manual Therapy" && b.SessionID == "sess-1"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 42
	}).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingSubmitted, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.BookingID == 42
	})).Return(nil).Once()

	res, err := svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepSubmitted, res.State.Step)
	assert.Equal(t, int64(42), res.State.BookingID)
	assert.False(t, res.State.Submitting)
	assert.Equal(t, []wizard.Notification{wizard.BookingConfirmed}, res.Notifications)

	timer := timers.last()
	require.NotNil(t, timer)
	assert.Equal(t, 3*time.Second, timer.delay)

	pub.On("PublishJSON", events.EventSessionReset, events.SessionResetPayload{SessionID: "sess-1", BookingID: 42}).Return(nil).Once()
	timer.fn()

	got, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepPersonalInfo, got.State.Step)
	assert.Equal(t, models.BookingForm{}, got.State.Form)
	assert.False(t, got.State.Open)

	_, err = svc.Set(ctx, "sess-1", map[string]string{wizard.FieldFirstName: "Late"})
	assert.ErrorIs(t, err, wizard.ErrSessionClosed)
	_, err = svc.Confirm(ctx, "sess-1")
	assert.ErrorIs(t, err, wizard.ErrSessionClosed)

	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestBookingService_ConfirmFailureKeepsData(t *testing.T) {
	svc, store, pub, timers := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	store.On("SaveBooking", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	res, err := svc.Confirm(ctx, "sess-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	require.NotNil(t, res)
	assert.Equal(t, models.StepConfirmation, res.State.Step)
	assert.False(t, res.State.Submitting)
	assert.Equal(t, "Jane", res.State.Form.FirstName)
	assert.Equal(t, []wizard.Notification{wizard.BookingFailed}, res.Notifications)
	assert.Nil(t, timers.last())
	pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)

	// manual retry succeeds
	store.On("SaveBooking", mock.Anything, mock.Anything).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingSubmitted, mock.Anything).Return(nil).Once()
	res, err = svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepSubmitted, res.State.Step)
}

func TestBookingService_ConfirmInFlight(t *testing.T) {
	svc, store, _, _ := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	require.True(t, svc.guard.TryAcquire("sess-1"))
	_, err := svc.Confirm(ctx, "sess-1")
	assert.ErrorIs(t, err, wizard.ErrSubmissionInFlight)
	svc.guard.Release("sess-1")
	store.AssertNotCalled(t, "SaveBooking", mock.Anything, mock.Anything)
}

func TestBookingService_ConfirmWrongStep(t *testing.T) {
	svc, store, _, _ := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)

	_, err := svc.Confirm(ctx, "sess-1")
	assert.ErrorIs(t, err, wizard.ErrInvalidTransition)
	store.AssertNotCalled(t, "SaveBooking", mock.Anything, mock.Anything)
}

func TestBookingService_CloseCancelsReset(t *testing.T) {
	svc, store, pub, timers := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	store.On("SaveBooking", mock.Anything, mock.Anything).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingSubmitted, mock.Anything).Return(nil).Once()
	_, err := svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, "sess-1"))
	assert.True(t, timers.last().stopped)

	_, err = svc.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Close(ctx, "sess-1"), ErrSessionNotFound)
	pub.AssertNotCalled(t, "PublishJSON", events.EventSessionReset, mock.Anything)
}

func TestBookingService_CloseDuringConfirm(t *testing.T) {
	svc, store, pub, timers := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	store.On("SaveBooking", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 9
		require.NoError(t, svc.Close(ctx, "sess-1"))
	}).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingSubmitted, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.BookingID == 9
	})).Return(nil).Once()

	res, err := svc.Confirm(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Nil(t, res)
	assert.Nil(t, timers.last())

	_, err = svc.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestBookingService_StaleResetIsIgnored(t *testing.T) {
	svc, store, pub, _ := newTestBookingService(t)
	ctx := context.Background()
	_, _ = svc.Open(ctx)
	fillToConfirmation(t, svc)

	// сессия ещё не отправлена
	svc.fireReset("sess-1", 0)
	got, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirmation, got.State.Step)
	assert.Equal(t, "Jane", got.State.Form.FirstName)

	store.On("SaveBooking", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 42
	}).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingSubmitted, mock.Anything).Return(nil).Once()
	_, err = svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)

	// таймер от другой записи
	svc.fireReset("sess-1", 7)
	got, err = svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepSubmitted, got.State.Step)
	assert.Equal(t, int64(42), got.State.BookingID)
	assert.Equal(t, "Jane", got.State.Form.FirstName)

	pub.AssertNotCalled(t, "PublishJSON", events.EventSessionReset, mock.Anything)
}

func TestBookingService_ConfirmOutlivesCancelledRequest(t *testing.T) {
	svc, store, pub, timers := newTestBookingService(t)
	_, _ = svc.Open(context.Background())
	fillToConfirmation(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	store.On("SaveBooking", mock.MatchedBy(func(c context.Context) bool {
		return c.Err() == nil
	}), mock.Anything).Run(func(args mock.Arguments) {
		cancel()
		args.Get(1).(*models.Booking).ID = 5
	}).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingSubmitted, mock.Anything).Return(nil).Once()

	res, err := svc.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.StepSubmitted, res.State.Step)
	assert.NotNil(t, timers.last())

	got, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, got.State.Submitting)
	assert.Equal(t, int64(5), got.State.BookingID)
	store.AssertExpectations(t)
}

func TestBookingService_CancelledBeforeConfirm(t *testing.T) {
	svc, store, pub, _ := newTestBookingService(t)
	_, _ = svc.Open(context.Background())
	fillToConfirmation(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store.On("SaveBooking", mock.MatchedBy(func(c context.Context) bool {
		return c.Err() == nil
	}), mock.Anything).Return(errors.New("db down")).Once()

	res, err := svc.Confirm(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	require.NotNil(t, res)
	assert.Equal(t, models.StepConfirmation, res.State.Step)
	assert.False(t, res.State.Submitting)
	pub.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}
