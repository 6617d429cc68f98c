package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

const (
	sessionKeyPrefix  = "session:"
	presenceKeyPrefix = "session:listeners:"
	sessionTTL        = 24 * time.Hour
)

// SessionCache keeps session snapshots in Redis so reads don't always hit
// the database. The database stays authoritative; every mutation rewrites
// the snapshot.
type SessionCache struct {
	client *redis.Client
}

func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

func (c *SessionCache) Set(ctx context.Context, session *models.Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionKeyPrefix + session.ID.String()
	if err := c.client.Set(ctx, key, sessionJSON, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}

	return nil
}

// Get returns (nil, nil) on a cache miss.
func (c *SessionCache) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	sessionJSON, err := c.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(sessionJSON, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (c *SessionCache) Invalidate(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// Presence counters track connected websocket listeners per session.

func (c *SessionCache) IncrListeners(ctx context.Context, sessionID string) (int64, error) {
	return c.client.Incr(ctx, presenceKeyPrefix+sessionID).Result()
}

func (c *SessionCache) DecrListeners(ctx context.Context, sessionID string) (int64, error) {
	count, err := c.client.Decr(ctx, presenceKeyPrefix+sessionID).Result()
	if err != nil {
		return 0, err
	}
	if count < 0 {
		// Decr without a matching Incr; clamp so the next connect starts at 1.
		c.client.Set(ctx, presenceKeyPrefix+sessionID, 0, 0)
		return 0, nil
	}
	return count, nil
}

func (c *SessionCache) Listeners(ctx context.Context, sessionID string) (int64, error) {
	count, err := c.client.Get(ctx, presenceKeyPrefix+sessionID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}
