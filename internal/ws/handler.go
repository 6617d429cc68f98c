package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sammogharabi/seda.fm-sub007/internal/auth"
	"github.com/sammogharabi/seda.fm-sub007/internal/vote"
	"github.com/sammogharabi/seda.fm-sub007/pkg/events"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
	redisx "github.com/sammogharabi/seda.fm-sub007/pkg/redis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin checking is handled by the CORS layer.
	},
}

type voteMessage struct {
	Type        string `json:"type"`
	QueueItemID string `json:"queue_item_id"`
	Vote        string `json:"vote"`
}

// Handler fans session events out to connected listeners and accepts inbound
// vote messages over the socket.
type Handler struct {
	// sessionID -> userID -> conn
	sessions map[string]map[string]*websocket.Conn
	mu       sync.RWMutex

	events   *events.KafkaClient
	votes    *vote.Service
	presence *redisx.SessionCache
}

func NewHandler(events *events.KafkaClient, votes *vote.Service, presence *redisx.SessionCache) *Handler {
	return &Handler{
		sessions: make(map[string]map[string]*websocket.Conn),
		events:   events,
		votes:    votes,
		presence: presence,
	}
}

// Run consumes the event stream and broadcasts to the matching session's
// connections until ctx is cancelled. Call once at startup.
func (h *Handler) Run(ctx context.Context) {
	if h.events == nil {
		return
	}
	err := h.events.ConsumeEvents(ctx, func(event events.Event) error {
		h.broadcast(event.SessionID, event)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("event consumer stopped")
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if _, err := uuid.Parse(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid session id"})
		return
	}
	userID := c.GetString(auth.UserIDKey)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	h.addConnection(sessionID, userID, conn)
	defer h.removeConnection(sessionID, userID)

	if h.presence != nil {
		if _, err := h.presence.IncrListeners(c.Request.Context(), sessionID); err != nil {
			log.Warn().Err(err).Msg("failed to bump listener count")
		}
		defer func() {
			if _, err := h.presence.DecrListeners(context.Background(), sessionID); err != nil {
				log.Warn().Err(err).Msg("failed to drop listener count")
			}
		}()
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		var msg voteMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn().Err(err).Msg("failed to parse websocket message")
			continue
		}

		if msg.Type == "vote" {
			h.handleVote(c.Request.Context(), userID, msg)
		}
	}
}

func (h *Handler) handleVote(ctx context.Context, userID string, msg voteMessage) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return
	}
	itemID, err := uuid.Parse(msg.QueueItemID)
	if err != nil {
		return
	}

	if _, err := h.votes.Cast(ctx, uid, itemID, models.VoteType(msg.Vote)); err != nil {
		log.Warn().Err(err).Str("item_id", msg.QueueItemID).Msg("websocket vote rejected")
	}
}

func (h *Handler) addConnection(sessionID, userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.sessions[sessionID]; !exists {
		h.sessions[sessionID] = make(map[string]*websocket.Conn)
	}
	h.sessions[sessionID][userID] = conn
}

func (h *Handler) removeConnection(sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, exists := h.sessions[sessionID]; exists {
		if conn, exists := conns[userID]; exists {
			conn.Close()
			delete(conns, userID)
		}
		if len(conns) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

func (h *Handler) broadcast(sessionID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, exists := h.sessions[sessionID]
	if !exists {
		return
	}

	messageJSON, err := json.Marshal(message)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal broadcast message")
		return
	}

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, messageJSON); err != nil {
			log.Warn().Err(err).Msg("failed to send broadcast message")
		}
	}
}
