package session

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sammogharabi/seda.fm-sub007/internal/auth"
	"github.com/sammogharabi/seda.fm-sub007/internal/queue"
	"github.com/sammogharabi/seda.fm-sub007/internal/tracks"
	"github.com/sammogharabi/seda.fm-sub007/internal/vote"
	"github.com/sammogharabi/seda.fm-sub007/pkg/apperrors"
	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

type Handler struct {
	sessions *Service
	queue    *queue.Service
	votes    *vote.Service
	resolver *tracks.Resolver
}

// NewHandler wires the session HTTP surface. resolver may be nil; track
// submissions then must carry a title.
func NewHandler(sessions *Service, queue *queue.Service, votes *vote.Service, resolver *tracks.Resolver) *Handler {
	return &Handler{
		sessions: sessions,
		queue:    queue,
		votes:    votes,
		resolver: resolver,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.create)
		sessions.GET("/active", h.listActive)
		sessions.GET("/recent/ended", h.listRecentlyEnded)
		sessions.GET("/:id", h.get)
		sessions.POST("/:id/join", h.join)
		sessions.POST("/:id/leave", h.leave)
		sessions.POST("/:id/queue", h.addTrack)
		sessions.GET("/:id/queue", h.getQueue)
		sessions.POST("/:id/queue/:queueItemId/vote", h.castVote)
		sessions.POST("/:id/skip", h.skip)
		sessions.PATCH("/:id/end", h.end)
		sessions.DELETE("/:id", h.delete)
	}
}

type trackRequest struct {
	Provider   string `json:"provider" binding:"required"`
	TrackID    string `json:"track_id" binding:"required"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artwork_url"`
	DurationMS int    `json:"duration_ms"`
}

func (r *trackRequest) toRef() models.TrackRef {
	return models.TrackRef{
		Provider:   r.Provider,
		TrackID:    r.TrackID,
		Title:      r.Title,
		Artist:     r.Artist,
		Album:      r.Album,
		ArtworkURL: r.ArtworkURL,
		DurationMS: r.DurationMS,
	}
}

type createSessionRequest struct {
	Genre        string        `json:"genre" binding:"required"`
	RoomID       *string       `json:"room_id"`
	Name         string        `json:"name"`
	IsPrivate    bool          `json:"is_private"`
	InitialTrack *trackRequest `json:"initial_track"`
	Tags         []string      `json:"tags"`
}

func (h *Handler) create(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := CreateParams{
		HostID:    userID,
		Genre:     req.Genre,
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
		Tags:      req.Tags,
	}

	if req.RoomID != nil {
		roomID, err := uuid.Parse(*req.RoomID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
			return
		}
		params.RoomID = &roomID
	}

	if req.InitialTrack != nil {
		ref := req.InitialTrack.toRef()
		if err := h.resolveTrack(c, &ref); err != nil {
			abortError(c, err)
			return
		}
		params.InitialTrack = &ref
	}

	session, err := h.sessions.Create(c.Request.Context(), params)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *Handler) get(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	session, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) listActive(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context(), queryLimit(c))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) listRecentlyEnded(c *gin.Context) {
	sessions, err := h.sessions.ListRecentlyEnded(c.Request.Context(), queryLimit(c))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) join(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	if err := h.sessions.Join(c.Request.Context(), sessionID, userID); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) leave(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	if err := h.sessions.Leave(c.Request.Context(), sessionID, userID); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addTrack(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := req.toRef()
	if err := h.resolveTrack(c, &ref); err != nil {
		abortError(c, err)
		return
	}

	item, err := h.queue.AddTrack(c.Request.Context(), sessionID, userID, ref)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getQueue(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	items, err := h.queue.Pending(c.Request.Context(), sessionID)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"queue": items})
}

type voteRequest struct {
	Vote models.VoteType `json:"vote" binding:"required,oneof=UPVOTE DOWNVOTE"`
}

func (h *Handler) castVote(c *gin.Context) {
	if _, ok := pathID(c, "id"); !ok {
		return
	}
	itemID, ok := pathID(c, "queueItemId")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.votes.Cast(c.Request.Context(), userID, itemID, req.Vote)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) skip(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	session, err := h.sessions.SkipTrack(c.Request.Context(), sessionID, userID)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) end(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	session, err := h.sessions.End(c.Request.Context(), sessionID, userID)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) delete(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), sessionID, userID); err != nil {
		abortError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// resolveTrack backfills metadata from the provider when the submission has
// no title. Without a resolver, a title is required.
func (h *Handler) resolveTrack(c *gin.Context, ref *models.TrackRef) error {
	if ref.Title != "" {
		return nil
	}
	if h.resolver == nil {
		return apperrors.BadRequest("title is required")
	}
	if err := h.resolver.Resolve(c.Request.Context(), ref); err != nil {
		log.Warn().Err(err).Str("track_id", ref.TrackID).Msg("track resolution failed")
		return apperrors.BadRequest("could not resolve track metadata")
	}
	return nil
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.GetString(auth.UserIDKey))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return uuid.Nil, false
	}
	return userID, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return limit
}

func abortError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	if appErr.Code == apperrors.CodeInternal {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
}
