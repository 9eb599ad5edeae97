package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/posetrack/backend/internal/auth"
	"github.com/posetrack/backend/internal/export"
	"github.com/posetrack/backend/internal/models"
	"github.com/posetrack/backend/pkg/queue"
	"github.com/posetrack/backend/pkg/response"
)

// HistoryStore persists finished summaries to the capped recent-history list.
type HistoryStore interface {
	Save(ctx context.Context, sum models.Summary, savedAt time.Time) error
}

// Archiver hands finished summaries to the background archive pipeline.
type Archiver interface {
	EnqueueSummaryArchive(ctx context.Context, payload queue.SummaryArchivePayload) error
}

// Broadcaster pushes live events to presenter clients of a session.
type Broadcaster interface {
	BroadcastSession(sessionID uuid.UUID, event string, payload interface{})
}

// Handler exposes session lifecycle, sample ingest and export over HTTP.
type Handler struct {
	manager *Manager
	tokens  *auth.TokenService
	history HistoryStore
	archive Archiver
	hub     Broadcaster
	logger  *zap.Logger
}

// NewHandler creates a sessions handler. history, archive and hub may be
// nil when the corresponding backend is disabled.
func NewHandler(manager *Manager, tokens *auth.TokenService, history HistoryStore, archive Archiver, hub Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, tokens: tokens, history: history, archive: archive, hub: hub, logger: logger}
}

type createRequest struct {
	Classes          []string        `json:"classes" binding:"required,min=1"`
	ThresholdPercent json.RawMessage `json:"threshold_percent"`
}

// Create handles POST /sessions: registers a tracker and mints its token.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "classes required")
		return
	}
	t := h.manager.Create(req.Classes, req.ThresholdPercent)
	token, err := h.tokens.Generate(t.ID)
	if err != nil {
		h.manager.Remove(t.ID)
		response.Internal(c, "failed to issue session token")
		return
	}
	response.Created(c, gin.H{
		"session_id":        t.ID,
		"token":             token,
		"threshold_percent": t.Threshold() * 100,
		"classes":           req.Classes,
	})
}

func (h *Handler) tracker(c *gin.Context) (*Tracker, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	t, ok := h.manager.Get(id)
	if !ok {
		response.NotFound(c, "session not found")
		return nil, false
	}
	return t, true
}

// command runs a lifecycle transition; ordering violations are reported
// as applied=false, never as errors.
func (h *Handler) command(c *gin.Context, name string, run func(t *Tracker) error) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	applied := true
	if err := run(t); err != nil {
		if !IsStateError(err) {
			response.Internal(c, err.Error())
			return
		}
		applied = false
	}
	snap := t.Snapshot()
	if applied && h.hub != nil {
		h.hub.BroadcastSession(t.ID, "snapshot", snap)
	}
	h.logger.Debug("session command",
		zap.String("command", name),
		zap.String("session_id", t.ID.String()),
		zap.Bool("applied", applied),
	)
	response.OK(c, gin.H{"applied": applied, "snapshot": snap})
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	h.command(c, "start", func(t *Tracker) error { return t.Start() })
}

// Pause handles POST /sessions/:id/pause.
func (h *Handler) Pause(c *gin.Context) {
	h.command(c, "pause", func(t *Tracker) error { return t.Pause() })
}

// Resume handles POST /sessions/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	h.command(c, "resume", func(t *Tracker) error { return t.Resume() })
}

// Reset handles POST /sessions/:id/reset.
func (h *Handler) Reset(c *gin.Context) {
	h.command(c, "reset", func(t *Tracker) error { t.Reset(); return nil })
}

// Ingest handles POST /sessions/:id/samples: one classifier frame.
func (h *Handler) Ingest(c *gin.Context) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	var frame models.SampleFrame
	if err := c.ShouldBindJSON(&frame); err != nil {
		response.BadRequest(c, "invalid sample frame")
		return
	}
	snap, err := t.Ingest(frame)
	if err != nil {
		if IsValidationError(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	if h.hub != nil {
		h.hub.BroadcastSession(t.ID, "snapshot", snap)
	}
	response.OK(c, snap)
}

// Snapshot handles GET /sessions/:id/snapshot.
func (h *Handler) Snapshot(c *gin.Context) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	response.OK(c, t.Snapshot())
}

// End handles POST /sessions/:id/end: finalizes the session, saves the
// summary to history and queues the durable archive job.
func (h *Handler) End(c *gin.Context) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	sum, err := t.End()
	if err != nil {
		if IsStateError(err) {
			response.OK(c, gin.H{"applied": false, "snapshot": t.Snapshot()})
			return
		}
		response.Internal(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if h.history != nil {
		if err := h.history.Save(ctx, *sum, time.Now()); err != nil {
			h.logger.Error("save history failed", zap.Error(err), zap.String("session_id", t.ID.String()))
		}
	}
	if h.archive != nil {
		if err := h.archive.EnqueueSummaryArchive(ctx, queue.SummaryArchivePayload{SessionID: t.ID, Summary: *sum}); err != nil {
			h.logger.Error("enqueue archive failed", zap.Error(err), zap.String("session_id", t.ID.String()))
		}
	}
	if h.hub != nil {
		h.hub.BroadcastSession(t.ID, "summary", sum)
	}
	response.OK(c, gin.H{"applied": true, "summary": sum})
}

// Export handles GET /sessions/:id/export: CSV of the finished summary,
// or of the live snapshot while the session is still running.
func (h *Handler) Export(c *gin.Context) {
	t, ok := h.tracker(c)
	if !ok {
		return
	}
	sum := t.ExportSummary()
	data, err := export.CSV(sum)
	if err != nil {
		response.Internal(c, "failed to render export")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(sum)+`"`)
	c.Data(http.StatusOK, "text/csv", data)
}
