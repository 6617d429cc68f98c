package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

func setupTestRedis(t *testing.T) (*SessionCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewSessionCache(client), mr
}

func TestSessionCacheRoundTrip(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	session := &models.Session{
		ID:        uuid.New(),
		HostID:    uuid.New(),
		Genre:     "house",
		Status:    models.SessionActive,
		CreatedAt: time.Now().Truncate(time.Second),
	}

	require.NoError(t, cache.Set(ctx, session))

	got, err := cache.Get(ctx, session.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Genre, got.Genre)
	assert.Equal(t, session.Status, got.Status)
}

func TestSessionCacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionCacheInvalidate(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	session := &models.Session{ID: uuid.New(), Status: models.SessionActive}
	require.NoError(t, cache.Set(ctx, session))
	require.NoError(t, cache.Invalidate(ctx, session.ID.String()))

	got, err := cache.Get(ctx, session.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListenerCounters(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	count, err := cache.Listeners(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	count, err = cache.IncrListeners(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = cache.IncrListeners(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = cache.DecrListeners(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Never goes negative.
	_, err = cache.DecrListeners(ctx, sessionID)
	require.NoError(t, err)
	count, err = cache.DecrListeners(ctx, sessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
