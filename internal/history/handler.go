package history

import (
	"github.com/gin-gonic/gin"

	"github.com/posetrack/backend/pkg/response"
)

// Handler exposes the recent-session history over HTTP.
type Handler struct {
	repo *Repository
}

// NewHandler creates a history handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /history (most recent first).
func (h *Handler) List(c *gin.Context) {
	entries, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list history")
		return
	}
	response.OK(c, gin.H{"history": entries, "count": len(entries)})
}

// Clear handles DELETE /history.
func (h *Handler) Clear(c *gin.Context) {
	if err := h.repo.Clear(c.Request.Context()); err != nil {
		response.Internal(c, "failed to clear history")
		return
	}
	response.NoContent(c)
}
