package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventTypeTrackAdded     EventType = "track_added"
	EventTypeVoteCast       EventType = "vote_cast"
	EventTypeTrackSkipped   EventType = "track_skipped"
	EventTypeSessionStarted EventType = "session_started"
	EventTypeSessionEnded   EventType = "session_ended"
	EventTypeUserJoined     EventType = "user_joined"
	EventTypeUserLeft       EventType = "user_left"
)

// Event is the envelope written to the session events topic.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
	}
}

// Publish wraps the payload in an Event envelope keyed by session, so all
// events for one session land on the same partition in order.
func (k *KafkaClient) Publish(ctx context.Context, eventType EventType, sessionID, userID string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := Event{
		Type:      eventType,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   payloadJSON,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := sessionID
	if key == "" {
		key = uuid.New().String()
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventJSON,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaClient) ConsumeEvents(ctx context.Context, handler func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				return fmt.Errorf("failed to read message: %w", err)
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal event: %w", err)
			}

			if err := handler(event); err != nil {
				return fmt.Errorf("failed to handle event: %w", err)
			}
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}

// Event payload types

type TrackAddedPayload struct {
	ItemID   string          `json:"item_id"`
	Track    json.RawMessage `json:"track"`
	Position int             `json:"position"`
}

type VoteCastPayload struct {
	ItemID    string `json:"item_id"`
	VoterID   string `json:"voter_id"`
	VoteType  string `json:"vote_type"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

type TrackSkippedPayload struct {
	PreviousItemID string          `json:"previous_item_id,omitempty"`
	NowPlayingItem string          `json:"now_playing_item,omitempty"`
	NowPlaying     json.RawMessage `json:"now_playing"`
}

type SessionLifecyclePayload struct {
	Status string `json:"status"`
	RoomID string `json:"room_id,omitempty"`
	Genre  string `json:"genre,omitempty"`
}

type MembershipPayload struct {
	RoomID string `json:"room_id"`
}
