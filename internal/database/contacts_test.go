package database

import (
	"context"
	"testing"
	"time"

	"physioheal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContact() *models.ContactMessage {
	return &models.ContactMessage{
		Name:    "Ann Lee",
		Email:   "ann@example.com",
		Service: "Pain Management",
		Message: "Do you treat sciatica?",
	}
}

func TestSaveAndGetContact(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := sampleContact()
	require.NoError(t, db.SaveContact(ctx, m))
	assert.NotZero(t, m.ID)

	got, err := db.GetContact(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
	assert.Equal(t, m.Email, got.Email)
	assert.Empty(t, got.Phone)
	assert.WithinDuration(t, m.CreatedAt, got.CreatedAt, time.Second)

	_, err = db.GetContact(ctx, m.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListContacts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveContact(ctx, sampleContact()))
	require.NoError(t, db.SaveContact(ctx, sampleContact()))

	now := time.Now()
	got, err := db.ListContacts(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	old, err := db.ListContacts(ctx, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, old)
}
