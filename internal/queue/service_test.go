package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	return store
}

func createTestSession(t *testing.T, store *database.Store, status models.SessionStatus) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:        uuid.New(),
		HostID:    uuid.New(),
		Genre:     "house",
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateSession(session))
	return session
}

func testTrack(title string) models.TrackRef {
	return models.TrackRef{
		Provider: "spotify",
		TrackID:  uuid.NewString(),
		Title:    title,
	}
}

func TestAddTrackAssignsIncreasingPositions(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	session := createTestSession(t, store, models.SessionActive)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		item, err := svc.AddTrack(ctx, session.ID, uuid.New(), testTrack(fmt.Sprintf("track %d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, item.Position)
	}

	items, err := store.SessionQueue(session.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	seen := make(map[int]bool)
	for _, item := range items {
		assert.False(t, seen[item.Position], "position %d assigned twice", item.Position)
		seen[item.Position] = true
	}
}

func TestAddTrackUnknownSession(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)

	_, err := svc.AddTrack(context.Background(), uuid.New(), uuid.New(), testTrack("ghost"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.From(err).Code)
}

func TestAddTrackEndedSession(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	session := createTestSession(t, store, models.SessionEnded)

	_, err := svc.AddTrack(context.Background(), session.ID, uuid.New(), testTrack("late"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.From(err).Code)
}

func TestPendingExcludesRetiredItems(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	session := createTestSession(t, store, models.SessionActive)
	ctx := context.Background()

	first, err := svc.AddTrack(ctx, session.ID, uuid.New(), testTrack("first"))
	require.NoError(t, err)
	second, err := svc.AddTrack(ctx, session.ID, uuid.New(), testTrack("second"))
	require.NoError(t, err)
	third, err := svc.AddTrack(ctx, session.ID, uuid.New(), testTrack("third"))
	require.NoError(t, err)

	require.NoError(t, svc.MarkPlayed(ctx, first.ID, time.Now()))
	require.NoError(t, svc.MarkSkipped(ctx, second.ID))

	pending, err := svc.Pending(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, third.ID, pending[0].ID)
}

func TestNextPendingEmptyQueue(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	session := createTestSession(t, store, models.SessionActive)

	item, err := svc.NextPending(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Nil(t, item)
}
