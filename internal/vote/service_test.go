package vote

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

func createTestItem(t *testing.T, store *database.Store) *models.QueueItem {
	t.Helper()
	item := &models.QueueItem{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		Track:     models.JSON(`{"provider":"spotify","track_id":"t1","title":"Track"}`),
		Position:  1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.Create(item).Error)
	return item
}

// assertCountsMatchRows checks the cached counters against the vote table.
func assertCountsMatchRows(t *testing.T, store *database.Store, itemID uuid.UUID) {
	t.Helper()
	item, err := store.GetQueueItem(itemID.String())
	require.NoError(t, err)

	upvotes, err := store.CountVotes(itemID, models.VoteUp)
	require.NoError(t, err)
	downvotes, err := store.CountVotes(itemID, models.VoteDown)
	require.NoError(t, err)

	assert.EqualValues(t, upvotes, item.Upvotes)
	assert.EqualValues(t, downvotes, item.Downvotes)
}

func TestCastRecountsAggregates(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	item := createTestItem(t, store)
	ctx := context.Background()

	updated, err := svc.Cast(ctx, uuid.New(), item.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Upvotes)
	assert.Equal(t, 0, updated.Downvotes)

	updated, err = svc.Cast(ctx, uuid.New(), item.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Upvotes)

	updated, err = svc.Cast(ctx, uuid.New(), item.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Upvotes)
	assert.Equal(t, 1, updated.Downvotes)

	assertCountsMatchRows(t, store, item.ID)
}

func TestCastOverwritesPreviousVote(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	item := createTestItem(t, store)
	voter := uuid.New()
	ctx := context.Background()

	updated, err := svc.Cast(ctx, voter, item.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Upvotes)
	assert.Equal(t, 0, updated.Downvotes)

	// Same voter flips to a downvote; the counted side moves, no new row.
	updated, err = svc.Cast(ctx, voter, item.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Upvotes)
	assert.Equal(t, 1, updated.Downvotes)

	var rows int64
	require.NoError(t, store.Model(&models.Vote{}).
		Where("queue_item_id = ? AND user_id = ?", item.ID, voter).
		Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	assertCountsMatchRows(t, store, item.ID)
}

func TestCastUnknownItem(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)

	_, err := svc.Cast(context.Background(), uuid.New(), uuid.New(), models.VoteUp)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.From(err).Code)
}

func TestCastRejectsBadVoteType(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil)
	item := createTestItem(t, store)

	_, err := svc.Cast(context.Background(), uuid.New(), item.ID, models.VoteType("SIDEWAYS"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeBadRequest, apperrors.From(err).Code)
}
