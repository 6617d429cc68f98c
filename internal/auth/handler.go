package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sammogharabi/seda.fm-sub007/pkg/database"
)

type Handler struct {
	db *database.Store
}

func NewHandler(db *database.Store) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.GET("/me", h.me)
	}
}

// me echoes the verified caller identity and lazily creates the local user
// row the first time an identity shows up.
func (h *Handler) me(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(UserIDKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.db.GetOrCreateUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
