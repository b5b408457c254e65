package service

import (
	"errors"
	"testing"
	"time"

	"physioheal/internal/events"
	"physioheal/internal/models"
	"physioheal/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Booking(t *testing.T) {
	w := new(mockWorker)
	n := new(mockNotifier)
	d := NewDispatcher(w, n, nil, nil)
	bus := events.NewEventBus(nil)
	d.Register(bus)

	booking := &models.Booking{ID: 5, FirstName: "Jane", Date: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)}
	w.On("EnqueueBooking", mock.Anything, worker.TaskAppend, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == 5 && b.Date.Equal(booking.Date)
	})).Return(nil).Once()
	n.On("NotifyBooking", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == 5
	})).Return(errors.New("telegram down")).Once()

	require.NoError(t, bus.PublishJSON(events.EventBookingSubmitted, events.NewBookingPayload(booking)))
	d.Wait()

	w.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestDispatcher_Contact(t *testing.T) {
	w := new(mockWorker)
	n := new(mockNotifier)
	r := new(mockRelay)
	d := NewDispatcher(w, n, r, nil)
	bus := events.NewEventBus(nil)
	d.Register(bus)

	msg := &models.ContactMessage{ID: 9, Name: "Ann", Email: "ann@example.com"}
	w.On("EnqueueContact", mock.Anything, mock.MatchedBy(func(m *models.ContactMessage) bool { return m.ID == 9 })).Return(nil).Once()
	n.On("NotifyContact", mock.Anything, mock.Anything).Return(nil).Once()
	r.On("Relay", mock.Anything, mock.MatchedBy(func(m *models.ContactMessage) bool { return m.Email == "ann@example.com" })).Return(nil).Once()

	require.NoError(t, bus.PublishJSON(events.EventContactSubmitted, events.NewContactPayload(msg)))
	d.Wait()

	w.AssertExpectations(t)
	n.AssertExpectations(t)
	r.AssertExpectations(t)
}

func TestDispatcher_StatusChangedUpserts(t *testing.T) {
	w := new(mockWorker)
	n := new(mockNotifier)
	d := NewDispatcher(w, n, nil, nil)
	bus := events.NewEventBus(nil)
	d.Register(bus)

	booking := &models.Booking{ID: 5, FirstName: "Jane", Status: models.StatusCancelled}
	w.On("EnqueueBooking", mock.Anything, worker.TaskUpsert, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == 5 && b.Status == models.StatusCancelled
	})).Return(nil).Once()

	require.NoError(t, bus.PublishJSON(events.EventBookingStatusChanged, events.NewBookingPayload(booking)))
	d.Wait()

	w.AssertExpectations(t)
	n.AssertNotCalled(t, "NotifyBooking", mock.Anything, mock.Anything)
}

func TestDispatcher_NothingConfigured(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	ev, err := events.NewJSONEvent(events.EventBookingSubmitted, events.BookingEventPayload{BookingID: 1})
	require.NoError(t, err)
	assert.NoError(t, d.onBooking(&ev))

	bad := events.Event{Type: events.EventContactSubmitted, Payload: []byte("{")}
	assert.Error(t, d.onContact(&bad))
}
