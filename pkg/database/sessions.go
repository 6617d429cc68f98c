package database

import (
	"gorm.io/gorm"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

func (s *Store) CreateSession(session *models.Session) error {
	return s.Create(session).Error
}

func (s *Store) GetSessionByID(id string) (*models.Session, error) {
	var session models.Session
	if err := s.First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) UpdateSession(session *models.Session) error {
	return s.Save(session).Error
}

func (s *Store) ListActiveSessions(limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := s.Where("status = ?", models.SessionActive).
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) ListRecentlyEndedSessions(limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := s.Where("status = ?", models.SessionEnded).
		Order("ended_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSessionCascade removes a session with its queue items and their
// votes in one transaction.
func (s *Store) DeleteSessionCascade(id string) error {
	return s.Transaction(func(tx *gorm.DB) error {
		itemIDs := tx.Model(&models.QueueItem{}).Select("id").Where("session_id = ?", id)
		if err := tx.Where("queue_item_id IN (?)", itemIDs).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&models.QueueItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Session{}, "id = ?", id).Error
	})
}
