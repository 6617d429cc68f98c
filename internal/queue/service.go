// Package queue implements the session track queue: vote-ranked pending
// ordering and atomic position allocation.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/events"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

// Position inserts retry on duplicate-key; beyond this something is wrong
// with the index, not the race.
const maxPositionRetries = 3

type Service struct {
	db     *database.Store
	events *events.KafkaClient
}

func NewService(db *database.Store, events *events.KafkaClient) *Service {
	return &Service{db: db, events: events}
}

// AddTrack appends a track request to a session's queue. Positions are
// allocated max+1 inside the insert transaction; the unique index on
// (session_id, position) catches concurrent adds and the insert is retried.
func (s *Service) AddTrack(ctx context.Context, sessionID, userID uuid.UUID, track models.TrackRef) (*models.QueueItem, error) {
	session, err := s.db.GetSessionByID(sessionID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("session %s not found", sessionID)
		}
		return nil, err
	}
	if session.Status == models.SessionEnded {
		return nil, apperrors.Conflict("session has ended")
	}

	trackJSON, err := track.ToJSON()
	if err != nil {
		return nil, apperrors.BadRequest("invalid track metadata")
	}

	item := &models.QueueItem{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Track:     trackJSON,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	for attempt := 0; ; attempt++ {
		err = s.db.CreateQueueItem(item)
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < maxPositionRetries {
			continue
		}
		return nil, err
	}

	s.publish(ctx, events.EventTypeTrackAdded, session.ID, userID, events.TrackAddedPayload{
		ItemID:   item.ID.String(),
		Track:    []byte(item.Track),
		Position: item.Position,
	})

	return item, nil
}

// Pending returns the unplayed, unskipped queue ranked by upvotes, ties
// broken by insertion order.
func (s *Service) Pending(ctx context.Context, sessionID uuid.UUID) ([]*models.QueueItem, error) {
	return s.db.PendingQueue(sessionID)
}

// NextPending returns the best candidate or nil when the pool is empty.
func (s *Service) NextPending(ctx context.Context, sessionID uuid.UUID) (*models.QueueItem, error) {
	item, err := s.db.NextPendingItem(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (s *Service) MarkPlayed(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	return s.db.MarkItemPlayed(itemID, at)
}

func (s *Service) MarkSkipped(ctx context.Context, itemID uuid.UUID) error {
	return s.db.MarkItemSkipped(itemID)
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, sessionID, userID uuid.UUID, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, sessionID.String(), userID.String(), payload); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Msg("failed to publish queue event")
	}
}
