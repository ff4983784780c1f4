package recordings

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/middleware"
	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/internal/policy"
	"github.com/roomkit/console-backend/internal/rooms"
	"github.com/roomkit/console-backend/pkg/queue"
	"github.com/roomkit/console-backend/pkg/response"
)

// PurgeQueue schedules background deletion retries for the worker.
type PurgeQueue interface {
	EnqueueRecordingPurge(ctx context.Context, payload queue.RecordingPurgePayload) error
}

// Handler exposes the recording lifecycle over HTTP.
type Handler struct {
	orch    *Orchestrator
	rooms   *rooms.Repository
	secrets *rooms.SecretService
	jobs    PurgeQueue
	logger  *zap.Logger
}

func NewHandler(orch *Orchestrator, roomRepo *rooms.Repository, secrets *rooms.SecretService, jobs PurgeQueue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orch: orch, rooms: roomRepo, secrets: secrets, jobs: jobs, logger: logger}
}

// RegisterRoutes mounts the recording endpoints on an auth'd router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rooms/:roomId/recordings", h.List)
	rg.POST("/rooms/:roomId/recordings/start", h.Start)
	rg.GET("/rooms/:roomId/recordings/:recordingId", h.Get)
	rg.POST("/rooms/:roomId/recordings/:recordingId/stop", h.Stop)
	rg.GET("/rooms/:roomId/recordings/:recordingId/media", h.Media)
	rg.GET("/rooms/:roomId/recordings/:recordingId/url", h.AccessURL)
	rg.DELETE("/rooms/:roomId/recordings/:recordingId", h.Delete)
	rg.POST("/rooms/:roomId/recordings/bulk-delete", h.BulkDelete)
}

// resolveCaller turns the request's credentials into a policy caller.
// Precedence: server API key, then access secret, then the JWT identity
// (admin, owner, room member). Returns false after writing the response.
func (h *Handler) resolveCaller(c *gin.Context, roomID uuid.UUID) (policy.Caller, bool) {
	if c.GetBool(middleware.ContextAPIKey) {
		return policy.Caller{Kind: policy.CallerAPIKey, Authenticated: true}, true
	}

	userID, hasUser := c.Get(middleware.ContextUserID)

	if token := c.Query("secret"); token != "" {
		sec, err := h.secrets.Parse(token)
		if err != nil {
			response.Unauthorized(c, "invalid access secret")
			return policy.Caller{}, false
		}
		if sec.RoomID != roomID {
			response.Forbidden(c, "secret does not grant access to this room")
			return policy.Caller{}, false
		}
		caller := policy.Caller{Kind: policy.CallerSecret, Secret: sec, Authenticated: hasUser}
		if hasUser {
			caller.UserID = userID.(uuid.UUID)
		}
		return caller, true
	}

	if !hasUser {
		response.Unauthorized(c, "authentication required")
		return policy.Caller{}, false
	}
	uid := userID.(uuid.UUID)

	if role, _ := c.Get(middleware.ContextUserRole); role == string(models.RoleAdmin) {
		return policy.Caller{Kind: policy.CallerAdmin, UserID: uid, Authenticated: true}, true
	}

	room, err := h.rooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("room lookup failed", zap.Error(err))
		response.Internal(c, "room lookup failed")
		return policy.Caller{}, false
	}
	if room == nil {
		response.NotFound(c, "room not found")
		return policy.Caller{}, false
	}
	if room.OwnerID == uid {
		return policy.Caller{Kind: policy.CallerOwner, UserID: uid, Authenticated: true}, true
	}

	member, err := h.rooms.GetMember(c.Request.Context(), roomID, uid)
	if err != nil {
		h.logger.Error("member lookup failed", zap.Error(err))
		response.Internal(c, "member lookup failed")
		return policy.Caller{}, false
	}
	if member == nil {
		response.Forbidden(c, "not a member of this room")
		return policy.Caller{}, false
	}
	return policy.Caller{Kind: policy.CallerMember, UserID: uid, Member: member, Authenticated: true}, true
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps domain errors onto the response envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "recording not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, "not allowed")
	case errors.Is(err, ErrAlreadyRecording):
		response.Conflict(c, "a recording is already in progress for this room")
	case errors.Is(err, ErrNotActive):
		response.Conflict(c, "recording is not active")
	case errors.Is(err, ErrNotTerminal):
		response.Conflict(c, "recording is still in progress")
	case errors.Is(err, ErrRecordingDisabled):
		response.Forbidden(c, "recording is disabled for this room")
	case errors.Is(err, ErrLockTimeout):
		response.Conflict(c, "room is busy, retry shortly")
	case errors.Is(err, ErrStorageUnavailable):
		response.ServiceUnavailable(c, "storage temporarily unavailable")
	case errors.Is(err, ErrPartialDelete):
		response.ServiceUnavailable(c, "delete incomplete, retry to finish")
	default:
		h.logger.Error("recording operation failed", zap.Error(err))
		response.Internal(c, "operation failed")
	}
}

// List returns the room's recordings visible to the caller.
func (h *Handler) List(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	list, err := h.orch.List(c.Request.Context(), roomID, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"recordings": list})
}

// Get returns one recording.
func (h *Handler) Get(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	recID, ok := parseID(c, "recordingId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	sess, err := h.orch.Get(c.Request.Context(), roomID, recID, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, sess)
}

// Start begins a recording in the room.
func (h *Handler) Start(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	sess, err := h.orch.Start(c.Request.Context(), roomID, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, sess)
}

// Stop requests the end of an active recording.
func (h *Handler) Stop(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	recID, ok := parseID(c, "recordingId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	sess, err := h.orch.Stop(c.Request.Context(), roomID, recID, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, sess)
}

// Media streams the finished recording.
func (h *Handler) Media(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	recID, ok := parseID(c, "recordingId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	rc, sess, err := h.orch.Media(c.Request.Context(), roomID, recID, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "video/mp4")
	c.Header("Content-Disposition", `attachment; filename="`+sess.ID.String()+`.mp4"`)
	if sess.SizeBytes > 0 {
		c.Header("Content-Length", strconv.FormatInt(sess.SizeBytes, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warn("media stream interrupted", zap.String("recording_id", sess.ID.String()), zap.Error(err))
	}
}

// AccessURL returns a time-limited download URL.
func (h *Handler) AccessURL(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	recID, ok := parseID(c, "recordingId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	url, ttl, err := h.orch.AccessURL(c.Request.Context(), roomID, recID, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in": int64(ttl.Seconds())})
}

// Delete removes a finished recording.
func (h *Handler) Delete(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	recID, ok := parseID(c, "recordingId")
	if !ok {
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	if err := h.orch.Delete(c.Request.Context(), roomID, recID, caller); err != nil {
		if errors.Is(err, ErrPartialDelete) {
			h.schedulePurgeRetry(c, roomID, recID)
		}
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// schedulePurgeRetry hands a half-finished delete to the worker. The metadata
// object is still in place after ErrPartialDelete, so the purge job can pick
// up where the synchronous delete stopped.
func (h *Handler) schedulePurgeRetry(c *gin.Context, roomID, recID uuid.UUID) {
	if h.jobs == nil {
		return
	}
	payload := queue.RecordingPurgePayload{RoomID: roomID.String(), RecordingID: recID.String()}
	if err := h.jobs.EnqueueRecordingPurge(c.Request.Context(), payload); err != nil {
		h.logger.Error("enqueue purge retry failed",
			zap.String("room_id", roomID.String()),
			zap.String("recording_id", recID.String()),
			zap.Error(err))
		return
	}
	h.logger.Info("purge retry scheduled",
		zap.String("room_id", roomID.String()),
		zap.String("recording_id", recID.String()))
}

type bulkDeleteRequest struct {
	RecordingIDs []uuid.UUID `json:"recording_ids" binding:"required,min=1"`
}

// BulkDelete removes several recordings, reporting per-recording outcomes.
func (h *Handler) BulkDelete(c *gin.Context) {
	roomID, ok := parseID(c, "roomId")
	if !ok {
		return
	}
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "recording_ids is required")
		return
	}
	caller, ok := h.resolveCaller(c, roomID)
	if !ok {
		return
	}
	res, err := h.orch.BulkDelete(c.Request.Context(), roomID, req.RecordingIDs, caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, res)
}
