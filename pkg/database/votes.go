package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

// CastVote upserts the caller's vote and recomputes both cached counts in
// the same transaction, so the counts can never drift from the vote rows.
func (s *Store) CastVote(queueItemID, userID uuid.UUID, voteType models.VoteType) (*models.QueueItem, error) {
	var item models.QueueItem

	err := s.Transaction(func(tx *gorm.DB) error {
		vote := models.Vote{
			ID:          uuid.New(),
			QueueItemID: queueItemID,
			UserID:      userID,
			Type:        voteType,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "queue_item_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "updated_at"}),
		}).Create(&vote).Error; err != nil {
			return err
		}

		var upvotes, downvotes int64
		if err := tx.Model(&models.Vote{}).
			Where("queue_item_id = ? AND type = ?", queueItemID, models.VoteUp).
			Count(&upvotes).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Vote{}).
			Where("queue_item_id = ? AND type = ?", queueItemID, models.VoteDown).
			Count(&downvotes).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.QueueItem{}).
			Where("id = ?", queueItemID).
			Updates(map[string]interface{}{
				"upvotes":   upvotes,
				"downvotes": downvotes,
			}).Error; err != nil {
			return err
		}

		return tx.First(&item, "id = ?", queueItemID).Error
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

func (s *Store) CountVotes(queueItemID uuid.UUID, voteType models.VoteType) (int64, error) {
	var count int64
	err := s.Model(&models.Vote{}).
		Where("queue_item_id = ? AND type = ?", queueItemID, voteType).
		Count(&count).Error
	return count, err
}
