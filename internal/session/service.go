// Package session implements the DJ session registry: lifecycle, membership
// side effects, and the now-playing pointer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sammogharabi/seda.fm-sub007/internal/queue"
	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/events"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
	redisx "github.com/sammogharabi/seda.fm-sub007/pkg/redis"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	db     *database.Store
	cache  *redisx.SessionCache
	events *events.KafkaClient
	queue  *queue.Service
}

func NewService(db *database.Store, cache *redisx.SessionCache, events *events.KafkaClient, queue *queue.Service) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		events: events,
		queue:  queue,
	}
}

type CreateParams struct {
	HostID       uuid.UUID
	Genre        string
	RoomID       *uuid.UUID
	Name         string
	IsPrivate    bool
	InitialTrack *models.TrackRef
	Tags         []string
}

// SessionWithQueue is a session plus its full queue in insertion order.
type SessionWithQueue struct {
	*models.Session
	Queue []*models.QueueItem `json:"queue"`
}

// Create starts a session. Room-linked sessions claim the room via the
// unique active-room key, so a concurrent second create loses at commit
// instead of slipping past the existence check.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Session, error) {
	now := time.Now()

	session := &models.Session{
		ID:          uuid.New(),
		HostID:      p.HostID,
		CurrentDJID: &p.HostID,
		Name:        p.Name,
		Genre:       p.Genre,
		IsPrivate:   p.IsPrivate,
		Status:      models.SessionActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if p.RoomID != nil {
		if _, err := s.db.GetRoomByID(p.RoomID.String()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("room %s not found", p.RoomID)
			}
			return nil, err
		}
		session.RoomID = p.RoomID
		key := p.RoomID.String()
		session.ActiveRoomKey = &key
	}

	if len(p.Tags) > 0 {
		tagsJSON, err := tagsToJSON(p.Tags)
		if err != nil {
			return nil, apperrors.BadRequest("invalid tags")
		}
		session.Tags = tagsJSON
	}

	if p.InitialTrack != nil {
		trackJSON, err := p.InitialTrack.ToJSON()
		if err != nil {
			return nil, apperrors.BadRequest("invalid initial track")
		}
		session.NowPlaying = trackJSON
		session.NowPlayingStartedAt = &now
	}

	if err := s.db.CreateSession(session); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict("room already has an active session")
		}
		return nil, err
	}

	s.cacheSet(ctx, session)
	s.publish(ctx, events.EventTypeSessionStarted, session, p.HostID, events.SessionLifecyclePayload{
		Status: string(session.Status),
		RoomID: roomIDString(session.RoomID),
		Genre:  session.Genre,
	})

	return session, nil
}

// GetByID returns the session (cache first) with its queue ordered by
// position. The queue always comes from the database.
func (s *Service) GetByID(ctx context.Context, sessionID uuid.UUID) (*SessionWithQueue, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	items, err := s.db.SessionQueue(sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionWithQueue{Session: session, Queue: items}, nil
}

func (s *Service) ListActive(ctx context.Context, limit int) ([]*models.Session, error) {
	return s.db.ListActiveSessions(clampLimit(limit))
}

func (s *Service) ListRecentlyEnded(ctx context.Context, limit int) ([]*models.Session, error) {
	return s.db.ListRecentlyEndedSessions(clampLimit(limit))
}

// Join upserts room membership for room-linked sessions. Joining twice, or
// joining a roomless session, is a no-op.
func (s *Service) Join(ctx context.Context, sessionID, userID uuid.UUID) error {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.RoomID == nil {
		return nil
	}

	if err := s.db.UpsertRoomMember(*session.RoomID, userID); err != nil {
		return err
	}

	s.publish(ctx, events.EventTypeUserJoined, session, userID, events.MembershipPayload{
		RoomID: session.RoomID.String(),
	})
	return nil
}

// Leave deletes the membership row; leaving without being a member is fine.
func (s *Service) Leave(ctx context.Context, sessionID, userID uuid.UUID) error {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.RoomID == nil {
		return nil
	}

	if err := s.db.DeleteRoomMember(*session.RoomID, userID); err != nil {
		return err
	}

	s.publish(ctx, events.EventTypeUserLeft, session, userID, events.MembershipPayload{
		RoomID: session.RoomID.String(),
	})
	return nil
}

// SkipTrack advances the now-playing pointer. The outgoing item is marked
// skipped and the promoted candidate is stamped played the moment it starts,
// so items leave the pending pool exactly once. When nothing is pending the
// pointer is cleared.
func (s *Service) SkipTrack(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.getFromDB(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionEnded {
		return nil, apperrors.Conflict("session has ended")
	}

	now := time.Now()
	payload := events.TrackSkippedPayload{}

	if session.NowPlayingItemID != nil {
		if err := s.queue.MarkSkipped(ctx, *session.NowPlayingItemID); err != nil {
			return nil, err
		}
		payload.PreviousItemID = session.NowPlayingItemID.String()
	}

	candidate, err := s.queue.NextPending(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if candidate == nil {
		session.NowPlaying = nil
		session.NowPlayingItemID = nil
		session.NowPlayingStartedAt = nil
	} else {
		if err := s.queue.MarkPlayed(ctx, candidate.ID, now); err != nil {
			return nil, err
		}
		session.NowPlaying = candidate.Track
		session.NowPlayingItemID = &candidate.ID
		session.NowPlayingStartedAt = &now
		session.CurrentDJID = &candidate.UserID
		payload.NowPlayingItem = candidate.ID.String()
		payload.NowPlaying = []byte(candidate.Track)
	}

	session.UpdatedAt = now
	if err := s.db.UpdateSession(session); err != nil {
		return nil, err
	}

	s.cacheSet(ctx, session)
	s.publish(ctx, events.EventTypeTrackSkipped, session, userID, payload)

	return session, nil
}

// End terminates a session. Host only; terminal.
func (s *Service) End(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.getFromDB(sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID != userID {
		return nil, apperrors.Forbidden("only the host can end the session")
	}
	if session.Status == models.SessionEnded {
		return nil, apperrors.Conflict("session already ended")
	}

	now := time.Now()
	session.Status = models.SessionEnded
	session.EndedAt = &now
	session.ActiveRoomKey = nil
	session.UpdatedAt = now

	if err := s.db.UpdateSession(session); err != nil {
		return nil, err
	}

	s.cacheSet(ctx, session)
	s.publish(ctx, events.EventTypeSessionEnded, session, userID, events.SessionLifecyclePayload{
		Status: string(session.Status),
		RoomID: roomIDString(session.RoomID),
	})

	return session, nil
}

// Delete removes a session and everything hanging off it. Host only.
func (s *Service) Delete(ctx context.Context, sessionID, userID uuid.UUID) error {
	session, err := s.getFromDB(sessionID)
	if err != nil {
		return err
	}
	if session.HostID != userID {
		return apperrors.Forbidden("only the host can delete the session")
	}

	if err := s.db.DeleteSessionCascade(sessionID.String()); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, sessionID.String()); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate session cache")
		}
	}
	return nil
}

// get reads through the cache; getFromDB is for mutations, which must see
// the authoritative row.
func (s *Service) get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	if s.cache != nil {
		if session, err := s.cache.Get(ctx, sessionID.String()); err == nil && session != nil {
			return session, nil
		}
	}

	session, err := s.getFromDB(sessionID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, session)
	return session, nil
}

func (s *Service) getFromDB(sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.db.GetSessionByID(sessionID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("session %s not found", sessionID)
		}
		return nil, err
	}
	return session, nil
}

func (s *Service) cacheSet(ctx context.Context, session *models.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, session); err != nil {
		log.Warn().Err(err).Msg("failed to cache session")
	}
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, session *models.Session, userID uuid.UUID, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, session.ID.String(), userID.String(), payload); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Msg("failed to publish session event")
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func roomIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func tagsToJSON(tags []string) (models.JSON, error) {
	buf, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return models.JSON(buf), nil
}
