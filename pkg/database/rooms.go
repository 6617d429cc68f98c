package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

func (s *Store) CreateRoom(room *models.Room) error {
	return s.Create(room).Error
}

func (s *Store) GetRoomByID(id string) (*models.Room, error) {
	var room models.Room
	if err := s.First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) GetRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := s.First(&room, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// UpsertRoomMember adds a membership row, silently keeping the existing one
// if the user already joined.
func (s *Store) UpsertRoomMember(roomID, userID uuid.UUID) error {
	member := models.RoomMember{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: time.Now(),
	}
	return s.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&member).Error
}

// DeleteRoomMember is idempotent; removing a non-member is not an error.
func (s *Store) DeleteRoomMember(roomID, userID uuid.UUID) error {
	return s.Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomMember{}).Error
}

func (s *Store) ListRoomMembers(roomID uuid.UUID) ([]*models.RoomMember, error) {
	var members []*models.RoomMember
	if err := s.Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// User operations

func (s *Store) CreateUser(user *models.User) error {
	return s.Create(user).Error
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUser backfills a user row for a verified caller identity.
func (s *Store) GetOrCreateUser(id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.First(&user, "id = ?", id).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{ID: id}
	if err := s.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
