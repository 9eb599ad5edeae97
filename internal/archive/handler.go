package archive

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/posetrack/backend/pkg/response"
	"github.com/posetrack/backend/pkg/storage"
)

// Handler exposes the durable session archive over HTTP.
type Handler struct {
	repo *Repository
	s3   *storage.S3
}

// NewHandler creates an archive handler. s3 may be nil when export
// downloads are disabled.
func NewHandler(repo *Repository, s3 *storage.S3) *Handler {
	return &Handler{repo: repo, s3: s3}
}

// List handles GET /archive?limit=n.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.repo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Internal(c, "failed to list archive")
		return
	}
	response.OK(c, gin.H{"sessions": list})
}

// GetByID handles GET /archive/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	if s == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, s)
}

// ExportURL handles GET /archive/:id/export: a short-lived presigned
// download URL for the session's uploaded CSV.
func (h *Handler) ExportURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "export storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	if s == nil {
		response.NotFound(c, "session not found")
		return
	}
	if s.CSVUrl == nil {
		response.NotFound(c, "export not ready")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), storage.ExportKey(id.String()), h.s3.PresignExpire())
	if err != nil {
		response.Internal(c, "failed to sign download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_minutes": int(h.s3.PresignExpire().Minutes())})
}

// Delete handles DELETE /archive/:id: drops the archived session and its
// uploaded export.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	existed, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to delete session")
		return
	}
	if !existed {
		response.NotFound(c, "session not found")
		return
	}
	if h.s3 != nil {
		// best effort; the DB row is already gone
		_ = h.s3.DeleteExport(c.Request.Context(), storage.ExportKey(id.String()))
	}
	response.NoContent(c)
}

// Totals handles GET /archive/totals: all-time per-class accumulation.
func (h *Handler) Totals(c *gin.Context) {
	totals, err := h.repo.TotalsByClass(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to aggregate totals")
		return
	}
	response.OK(c, gin.H{"totals": totals})
}
