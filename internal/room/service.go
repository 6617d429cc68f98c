package room

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

const codeLength = 6

type Service struct {
	db *database.Store
}

func NewService(db *database.Store) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, hostID uuid.UUID, name string, isPrivate bool) (*models.Room, error) {
	room := &models.Room{
		ID:        uuid.New(),
		Code:      generateRoomCode(),
		HostID:    hostID,
		Name:      name,
		IsPrivate: isPrivate,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.CreateRoom(room); err != nil {
		return nil, err
	}

	return room, nil
}

func (s *Service) Get(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	room, err := s.db.GetRoomByID(roomID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("room %s not found", roomID)
		}
		return nil, err
	}
	return room, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := s.db.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("room with code %s not found", code)
		}
		return nil, err
	}
	return room, nil
}

func (s *Service) Members(ctx context.Context, roomID uuid.UUID) ([]*models.RoomMember, error) {
	if _, err := s.Get(ctx, roomID); err != nil {
		return nil, err
	}
	return s.db.ListRoomMembers(roomID)
}

func generateRoomCode() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = charset[rand.Intn(len(charset))]
	}
	return string(code)
}
