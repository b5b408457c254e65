package database

import (
	"context"
	"testing"
	"time"

	"physioheal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBooking() *models.Booking {
	return &models.Booking{
		SessionID: "sess-1",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Phone:     "555-0100",
		Service:   "Manual Therapy",
		Date:      time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		TimeSlot:  "10:00 AM",
		Message:   "Lower back pain",
	}
}

func TestSaveAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := sampleBooking()
	require.NoError(t, db.SaveBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.False(t, b.CreatedAt.IsZero())
	assert.Equal(t, models.StatusPending, b.Status)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.FullName())
	assert.Equal(t, "Manual Therapy", got.Service)
	assert.Equal(t, "10:00 AM", got.TimeSlot)
	assert.Equal(t, "2026-03-12", got.Date.Format(models.DateLayout))
	assert.Equal(t, "sess-1", got.SessionID)
}

func TestGetBooking_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetBooking(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b := sampleBooking()
		b.Date = base.AddDate(0, 0, i)
		require.NoError(t, db.SaveBooking(ctx, b))
	}

	got, err := db.ListBookings(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2026-03-11", got[0].Date.Format(models.DateLayout))
	assert.Equal(t, "2026-03-13", got[2].Date.Format(models.DateLayout))

	none, err := db.ListBookings(ctx, base.AddDate(1, 0, 0), base.AddDate(1, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateBookingStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := sampleBooking()
	require.NoError(t, db.SaveBooking(ctx, b))

	require.NoError(t, db.UpdateBookingStatus(ctx, b.ID, models.StatusConfirmed))
	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	assert.ErrorIs(t, db.UpdateBookingStatus(ctx, 999, models.StatusCancelled), ErrNotFound)
}
