package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/sammogharabi/seda.fm-sub007/internal/queue"
	"github.com/sammogharabi/seda.fm-sub007/internal/vote"
	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

type testEnv struct {
	store    *database.Store
	sessions *Service
	queue    *queue.Service
	votes    *vote.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)

	queueService := queue.NewService(store, nil)
	return &testEnv{
		store:    store,
		sessions: NewService(store, nil, nil, queueService),
		queue:    queueService,
		votes:    vote.NewService(store, nil),
	}
}

func (e *testEnv) createRoom(t *testing.T) *models.Room {
	t.Helper()
	room := &models.Room{
		ID:     uuid.New(),
		Code:   uuid.NewString()[:6],
		HostID: uuid.New(),
		Name:   "test room",
	}
	require.NoError(t, e.store.CreateRoom(room))
	return room
}

func track(title string) models.TrackRef {
	return models.TrackRef{Provider: "spotify", TrackID: uuid.NewString(), Title: title}
}

func TestCreateRejectsSecondActiveSessionForRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t)

	first, err := env.sessions.Create(ctx, CreateParams{
		HostID: uuid.New(),
		Genre:  "house",
		RoomID: &room.ID,
	})
	require.NoError(t, err)

	_, err = env.sessions.Create(ctx, CreateParams{
		HostID: uuid.New(),
		Genre:  "techno",
		RoomID: &room.ID,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.From(err).Code)

	// The existing session is untouched.
	got, err := env.store.GetSessionByID(first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)
	assert.Equal(t, "house", got.Genre)
}

func TestCreateAllowsNewSessionAfterEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t)
	host := uuid.New()

	first, err := env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "house", RoomID: &room.ID})
	require.NoError(t, err)

	_, err = env.sessions.End(ctx, first.ID, host)
	require.NoError(t, err)

	_, err = env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "techno", RoomID: &room.ID})
	require.NoError(t, err)
}

func TestCreateUnknownRoom(t *testing.T) {
	env := newTestEnv(t)
	missing := uuid.New()

	_, err := env.sessions.Create(context.Background(), CreateParams{
		HostID: uuid.New(),
		Genre:  "house",
		RoomID: &missing,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.From(err).Code)
}

func TestCreateWithInitialTrack(t *testing.T) {
	env := newTestEnv(t)
	opener := track("opening track")

	session, err := env.sessions.Create(context.Background(), CreateParams{
		HostID:       uuid.New(),
		Genre:        "house",
		InitialTrack: &opener,
		Tags:         []string{"late-night", "deep"},
	})
	require.NoError(t, err)

	assert.NotNil(t, session.NowPlayingStartedAt)
	assert.JSONEq(t, `{"provider":"spotify","track_id":"`+opener.TrackID+`","title":"opening track"}`, string(session.NowPlaying))
	assert.JSONEq(t, `["late-night","deep"]`, string(session.Tags))
	require.NotNil(t, session.CurrentDJID)
	assert.Equal(t, session.HostID, *session.CurrentDJID)
}

func TestEndRequiresHost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "house"})
	require.NoError(t, err)

	_, err = env.sessions.End(ctx, session.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeForbidden, apperrors.From(err).Code)

	got, err := env.store.GetSessionByID(session.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)

	ended, err := env.sessions.End(ctx, session.ID, host)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, ended.Status)
	assert.NotNil(t, ended.EndedAt)

	// ENDED is terminal.
	_, err = env.sessions.End(ctx, session.ID, host)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.From(err).Code)
}

func TestQueueOrderScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: uuid.New(), Genre: "house"})
	require.NoError(t, err)

	t1, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track("T1"))
	require.NoError(t, err)
	t2, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track("T2"))
	require.NoError(t, err)
	t3, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track("T3"))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, []int{t1.Position, t2.Position, t3.Position})

	for _, itemID := range []uuid.UUID{t3.ID, t3.ID, t1.ID} {
		_, err = env.votes.Cast(ctx, uuid.New(), itemID, models.VoteUp)
		require.NoError(t, err)
	}

	pending, err := env.queue.Pending(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, t3.ID, pending[0].ID)
	assert.Equal(t, t1.ID, pending[1].ID)
	assert.Equal(t, t2.ID, pending[2].ID)
	assert.Equal(t, 2, pending[0].Upvotes)
	assert.Equal(t, 1, pending[1].Upvotes)
	assert.Equal(t, 0, pending[2].Upvotes)
}

func TestSkipPromotesBestCandidateAndRetiresItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "house"})
	require.NoError(t, err)

	t1, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track("T1"))
	require.NoError(t, err)
	t2, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track("T2"))
	require.NoError(t, err)

	_, err = env.votes.Cast(ctx, uuid.New(), t2.ID, models.VoteUp)
	require.NoError(t, err)

	// Highest-voted item wins and is consumed from the pending pool.
	updated, err := env.sessions.SkipTrack(ctx, session.ID, host)
	require.NoError(t, err)
	require.NotNil(t, updated.NowPlayingItemID)
	assert.Equal(t, t2.ID, *updated.NowPlayingItemID)
	assert.NotNil(t, updated.NowPlayingStartedAt)

	promoted, err := env.store.GetQueueItem(t2.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, promoted.PlayedAt)

	// Skipping again retires the outgoing item and promotes the next one.
	updated, err = env.sessions.SkipTrack(ctx, session.ID, host)
	require.NoError(t, err)
	require.NotNil(t, updated.NowPlayingItemID)
	assert.Equal(t, t1.ID, *updated.NowPlayingItemID)

	outgoing, err := env.store.GetQueueItem(t2.ID.String())
	require.NoError(t, err)
	assert.True(t, outgoing.Skipped)

	// Pool drained: now-playing clears.
	updated, err = env.sessions.SkipTrack(ctx, session.ID, host)
	require.NoError(t, err)
	assert.Nil(t, updated.NowPlayingItemID)
	assert.Nil(t, updated.NowPlayingStartedAt)
	assert.Nil(t, updated.NowPlaying)

	pending, err := env.queue.Pending(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSkipUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sessions.SkipTrack(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.From(err).Code)
}

func TestJoinLeaveIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.createRoom(t)
	user := uuid.New()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: uuid.New(), Genre: "house", RoomID: &room.ID})
	require.NoError(t, err)

	require.NoError(t, env.sessions.Join(ctx, session.ID, user))
	require.NoError(t, env.sessions.Join(ctx, session.ID, user))

	members, err := env.store.ListRoomMembers(room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, user, members[0].UserID)

	require.NoError(t, env.sessions.Leave(ctx, session.ID, user))
	require.NoError(t, env.sessions.Leave(ctx, session.ID, user))

	members, err = env.store.ListRoomMembers(room.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestJoinRoomlessSessionIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: uuid.New(), Genre: "house"})
	require.NoError(t, err)

	require.NoError(t, env.sessions.Join(ctx, session.ID, uuid.New()))
}

func TestGetByIDReturnsQueueInInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: uuid.New(), Genre: "house"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track(fmt.Sprintf("T%d", i)))
		require.NoError(t, err)
	}

	got, err := env.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got.Queue, 3)
	for i, item := range got.Queue {
		assert.Equal(t, i+1, item.Position)
	}
}

func TestListActiveAndEnded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()

	first, err := env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "house"})
	require.NoError(t, err)
	_, err = env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "techno"})
	require.NoError(t, err)

	active, err := env.sessions.ListActive(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = env.sessions.End(ctx, first.ID, host)
	require.NoError(t, err)

	active, err = env.sessions.ListActive(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	ended, err := env.sessions.ListRecentlyEnded(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, first.ID, ended[0].ID)
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()

	session, err := env.sessions.Create(ctx, CreateParams{HostID: host, Genre: "house"})
	require.NoError(t, err)

	item, err := env.queue.AddTrack(ctx, session.ID, uuid.New(), track("T1"))
	require.NoError(t, err)
	_, err = env.votes.Cast(ctx, uuid.New(), item.ID, models.VoteUp)
	require.NoError(t, err)

	require.Error(t, env.sessions.Delete(ctx, session.ID, uuid.New()))

	require.NoError(t, env.sessions.Delete(ctx, session.ID, host))

	_, err = env.sessions.GetByID(ctx, session.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.From(err).Code)

	var voteRows int64
	require.NoError(t, env.store.Model(&models.Vote{}).Count(&voteRows).Error)
	assert.Zero(t, voteRows)
}
