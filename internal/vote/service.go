// Package vote records per-user up/down votes on queue items and keeps the
// cached aggregate counts in lockstep with the vote rows.
package vote

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/events"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

type Service struct {
	db     *database.Store
	events *events.KafkaClient
}

func NewService(db *database.Store, events *events.KafkaClient) *Service {
	return &Service{db: db, events: events}
}

// Cast records or replaces the caller's vote on a queue item. A second vote
// by the same user overwrites the first, immediately flipping the counted
// side. The upsert and the recount of both counters share one transaction.
func (s *Service) Cast(ctx context.Context, userID, itemID uuid.UUID, voteType models.VoteType) (*models.QueueItem, error) {
	if !voteType.Valid() {
		return nil, apperrors.BadRequest("vote type must be UPVOTE or DOWNVOTE")
	}

	if _, err := s.db.GetQueueItem(itemID.String()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("queue item %s not found", itemID)
		}
		return nil, err
	}

	item, err := s.db.CastVote(itemID, userID, voteType)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		payload := events.VoteCastPayload{
			ItemID:    item.ID.String(),
			VoterID:   userID.String(),
			VoteType:  string(voteType),
			Upvotes:   item.Upvotes,
			Downvotes: item.Downvotes,
		}
		if err := s.events.Publish(ctx, events.EventTypeVoteCast, item.SessionID.String(), userID.String(), payload); err != nil {
			log.Warn().Err(err).Msg("failed to publish vote event")
		}
	}

	return item, nil
}
