package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionEnded  SessionStatus = "ENDED"
)

type VoteType string

const (
	VoteUp   VoteType = "UPVOTE"
	VoteDown VoteType = "DOWNVOTE"
)

func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Room struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"unique"`
	HostID    uuid.UUID `json:"host_id"`
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RoomMember struct {
	ID       uuid.UUID `json:"id" gorm:"primaryKey"`
	RoomID   uuid.UUID `json:"room_id" gorm:"uniqueIndex:idx_room_members_room_user"`
	UserID   uuid.UUID `json:"user_id" gorm:"uniqueIndex:idx_room_members_room_user"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session is a DJ session. ActiveRoomKey mirrors RoomID while the session is
// ACTIVE and is cleared on end; its unique index is what enforces a single
// active session per room.
type Session struct {
	ID                  uuid.UUID     `json:"id" gorm:"primaryKey"`
	RoomID              *uuid.UUID    `json:"room_id"`
	ActiveRoomKey       *string       `json:"-" gorm:"uniqueIndex"`
	HostID              uuid.UUID     `json:"host_id"`
	CurrentDJID         *uuid.UUID    `json:"current_dj_id"`
	Name                string        `json:"name"`
	Genre               string        `json:"genre"`
	IsPrivate           bool          `json:"is_private"`
	Tags                JSON          `json:"tags"`
	Status              SessionStatus `json:"status"`
	NowPlaying          JSON          `json:"now_playing"`
	NowPlayingItemID    *uuid.UUID    `json:"now_playing_item_id"`
	NowPlayingStartedAt *time.Time    `json:"now_playing_started_at"`
	EndedAt             *time.Time    `json:"ended_at"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// QueueItem is a track request in a session's queue. Position is unique per
// session; Upvotes/Downvotes are recomputed projections of the votes table
// and must never be written by anything but the vote recount.
type QueueItem struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey"`
	SessionID uuid.UUID  `json:"session_id" gorm:"uniqueIndex:idx_queue_session_position"`
	UserID    uuid.UUID  `json:"user_id"`
	Track     JSON       `json:"track"`
	Position  int        `json:"position" gorm:"uniqueIndex:idx_queue_session_position"`
	Upvotes   int        `json:"upvotes"`
	Downvotes int        `json:"downvotes"`
	PlayedAt  *time.Time `json:"played_at"`
	Skipped   bool       `json:"skipped"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Pending reports whether the item is still eligible for play ordering.
func (q *QueueItem) Pending() bool {
	return q.PlayedAt == nil && !q.Skipped
}

type Vote struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	QueueItemID uuid.UUID `json:"queue_item_id" gorm:"uniqueIndex:idx_votes_item_user"`
	UserID      uuid.UUID `json:"user_id" gorm:"uniqueIndex:idx_votes_item_user"`
	Type        VoteType  `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TrackRef is the validated shape of track metadata at the HTTP boundary.
// The core stores it as an opaque JSON column.
type TrackRef struct {
	Provider   string `json:"provider"`
	TrackID    string `json:"track_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

func (t TrackRef) ToJSON() (JSON, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return JSON(buf), nil
}
