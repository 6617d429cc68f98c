package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

// CreateQueueItem assigns the next position and inserts in one transaction.
// The (session_id, position) unique index rejects a concurrent add that read
// the same max; callers retry on gorm.ErrDuplicatedKey.
func (s *Store) CreateQueueItem(item *models.QueueItem) error {
	return s.Transaction(func(tx *gorm.DB) error {
		var max sql.NullInt64
		if err := tx.Model(&models.QueueItem{}).
			Where("session_id = ?", item.SessionID).
			Select("MAX(position)").
			Scan(&max).Error; err != nil {
			return err
		}

		item.Position = int(max.Int64) + 1
		return tx.Create(item).Error
	})
}

func (s *Store) GetQueueItem(id string) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := s.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// SessionQueue returns every item of a session in insertion order.
func (s *Store) SessionQueue(sessionID uuid.UUID) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := s.Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// PendingQueue returns unplayed, unskipped items ranked by votes, ties
// broken by insertion order.
func (s *Store) PendingQueue(sessionID uuid.UUID) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := s.Where("session_id = ? AND played_at IS NULL AND skipped = ?", sessionID, false).
		Order("upvotes DESC, position ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) NextPendingItem(sessionID uuid.UUID) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := s.Where("session_id = ? AND played_at IS NULL AND skipped = ?", sessionID, false).
		Order("upvotes DESC, position ASC").
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) MarkItemPlayed(id uuid.UUID, at time.Time) error {
	return s.Model(&models.QueueItem{}).
		Where("id = ?", id).
		Update("played_at", at).Error
}

func (s *Store) MarkItemSkipped(id uuid.UUID) error {
	return s.Model(&models.QueueItem{}).
		Where("id = ?", id).
		Update("skipped", true).Error
}
