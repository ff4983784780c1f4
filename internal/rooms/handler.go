package rooms

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/middleware"
	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/pkg/queue"
	"github.com/roomkit/console-backend/pkg/response"
)

// RoomDefaults supplies console-wide defaults for new rooms.
type RoomDefaults interface {
	RoomDefaults(ctx context.Context) (enabled bool, access models.AccessTier, retentionDays int)
}

// Handler exposes room and membership management over HTTP.
type Handler struct {
	repo     *Repository
	secrets  *SecretService
	jobs     *queue.Queue
	defaults RoomDefaults
	logger   *zap.Logger
}

func NewHandler(repo *Repository, secrets *SecretService, jobs *queue.Queue, defaults RoomDefaults, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, secrets: secrets, jobs: jobs, defaults: defaults, logger: logger}
}

// RegisterRoutes mounts room endpoints on an auth'd router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rooms", h.Create)
	rg.GET("/rooms", h.List)
	rg.GET("/rooms/:roomId", h.Get)
	rg.DELETE("/rooms/:roomId", h.Delete)
	rg.PUT("/rooms/:roomId/recording-config", h.UpdateRecordingConfig)
	rg.POST("/rooms/:roomId/secrets", h.IssueSecret)
	rg.GET("/rooms/:roomId/members", h.ListMembers)
	rg.PUT("/rooms/:roomId/members/:userId", h.UpsertMember)
	rg.DELETE("/rooms/:roomId/members/:userId", h.RemoveMember)
}

func (h *Handler) callerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return uuid.Nil, false
	}
	return v.(uuid.UUID), true
}

func (h *Handler) isAdmin(c *gin.Context) bool {
	if c.GetBool(middleware.ContextAPIKey) {
		return true
	}
	role, _ := c.Get(middleware.ContextUserRole)
	return role == string(models.RoleAdmin)
}

// requireRoomAdmin loads the room and checks the caller is a platform admin
// or the room owner. Returns nil after writing the error response.
func (h *Handler) requireRoomAdmin(c *gin.Context) *models.Room {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		response.BadRequest(c, "invalid roomId")
		return nil
	}
	room, err := h.repo.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("room lookup failed", zap.Error(err))
		response.Internal(c, "room lookup failed")
		return nil
	}
	if room == nil {
		response.NotFound(c, "room not found")
		return nil
	}
	if h.isAdmin(c) {
		return room
	}
	uid, ok := h.callerID(c)
	if !ok {
		return nil
	}
	if room.OwnerID != uid {
		response.Forbidden(c, "room admin access required")
		return nil
	}
	return room
}

type createRoomRequest struct {
	Name             string            `json:"name" binding:"required"`
	RecordingEnabled *bool             `json:"recording_enabled"`
	RecordingAccess  models.AccessTier `json:"recording_access"`
	AutoDeletionAt   *time.Time        `json:"auto_deletion_at"`
}

// Create registers a new room owned by the caller. Fields the request omits
// fall back to the console-wide preferences.
func (h *Handler) Create(c *gin.Context) {
	uid, ok := h.callerID(c)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}

	defEnabled, defAccess, retentionDays := false, models.AccessAdminModerator, 0
	if h.defaults != nil {
		defEnabled, defAccess, retentionDays = h.defaults.RoomDefaults(c.Request.Context())
	}
	enabled := defEnabled
	if req.RecordingEnabled != nil {
		enabled = *req.RecordingEnabled
	}
	if req.RecordingAccess == "" {
		req.RecordingAccess = defAccess
	}
	if !models.ValidAccessTier(req.RecordingAccess) {
		response.BadRequest(c, "invalid recording_access tier")
		return
	}
	if req.AutoDeletionAt == nil && retentionDays > 0 {
		t := time.Now().AddDate(0, 0, retentionDays)
		req.AutoDeletionAt = &t
	}

	room := &models.Room{
		Name:    req.Name,
		OwnerID: uid,
		Recording: models.RecordingConfig{
			Enabled:       enabled,
			AllowAccessTo: req.RecordingAccess,
		},
		AutoDeletionAt: req.AutoDeletionAt,
	}
	if err := h.repo.Create(c.Request.Context(), room); err != nil {
		h.logger.Error("room create failed", zap.Error(err))
		response.Internal(c, "could not create room")
		return
	}
	response.Created(c, room)
}

// List returns the caller's rooms, or every room for admins.
func (h *Handler) List(c *gin.Context) {
	var owner *uuid.UUID
	if !h.isAdmin(c) {
		uid, ok := h.callerID(c)
		if !ok {
			return
		}
		owner = &uid
	}
	list, err := h.repo.List(c.Request.Context(), owner)
	if err != nil {
		h.logger.Error("room list failed", zap.Error(err))
		response.Internal(c, "could not list rooms")
		return
	}
	response.OK(c, gin.H{"rooms": list})
}

// Get returns one room.
func (h *Handler) Get(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		response.BadRequest(c, "invalid roomId")
		return
	}
	room, err := h.repo.GetByID(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("room lookup failed", zap.Error(err))
		response.Internal(c, "room lookup failed")
		return
	}
	if room == nil {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, room)
}

// Delete removes the room and queues cleanup of its recordings.
func (h *Handler) Delete(c *gin.Context) {
	room := h.requireRoomAdmin(c)
	if room == nil {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), room.ID); err != nil {
		h.logger.Error("room delete failed", zap.Error(err))
		response.Internal(c, "could not delete room")
		return
	}
	if err := h.jobs.EnqueueRoomPurge(c.Request.Context(), queue.RoomPurgePayload{RoomID: room.ID.String()}); err != nil {
		// Room row is gone; the expiry sweep cannot retry this, so log loudly.
		h.logger.Error("failed to enqueue room purge",
			zap.String("room_id", room.ID.String()), zap.Error(err))
	}
	response.NoContent(c)
}

type recordingConfigRequest struct {
	Enabled       bool              `json:"enabled"`
	AllowAccessTo models.AccessTier `json:"allow_access_to" binding:"required"`
}

// UpdateRecordingConfig replaces the room's recording settings. Changes apply
// to future recordings only; finished ones keep the tier they started with.
func (h *Handler) UpdateRecordingConfig(c *gin.Context) {
	room := h.requireRoomAdmin(c)
	if room == nil {
		return
	}
	var req recordingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "allow_access_to is required")
		return
	}
	if !models.ValidAccessTier(req.AllowAccessTo) {
		response.BadRequest(c, "invalid allow_access_to tier")
		return
	}
	cfg := models.RecordingConfig{Enabled: req.Enabled, AllowAccessTo: req.AllowAccessTo}
	if err := h.repo.UpdateRecordingConfig(c.Request.Context(), room.ID, cfg); err != nil {
		h.logger.Error("recording config update failed", zap.Error(err))
		response.Internal(c, "could not update recording config")
		return
	}
	room.Recording = cfg
	response.OK(c, room)
}

type issueSecretRequest struct {
	Role    models.MemberRole `json:"role" binding:"required"`
	Private bool              `json:"private"`
}

// IssueSecret mints a shareable access secret for the room. Secrets are
// deterministic, so reissuing with the same parameters returns the same value.
func (h *Handler) IssueSecret(c *gin.Context) {
	room := h.requireRoomAdmin(c)
	if room == nil {
		return
	}
	var req issueSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role is required")
		return
	}
	if req.Role != models.MemberModerator && req.Role != models.MemberSpeaker {
		response.BadRequest(c, "role must be moderator or speaker")
		return
	}
	token := h.secrets.Issue(room.ID, req.Role, req.Private)
	response.OK(c, gin.H{"secret": token, "role": req.Role, "private": req.Private})
}

// ListMembers returns the room's memberships.
func (h *Handler) ListMembers(c *gin.Context) {
	room := h.requireRoomAdmin(c)
	if room == nil {
		return
	}
	list, err := h.repo.ListMembers(c.Request.Context(), room.ID)
	if err != nil {
		h.logger.Error("member list failed", zap.Error(err))
		response.Internal(c, "could not list members")
		return
	}
	response.OK(c, gin.H{"members": list})
}

type upsertMemberRequest struct {
	Role                  models.MemberRole `json:"role" binding:"required"`
	CanRecord             bool              `json:"can_record"`
	CanRetrieveRecordings bool              `json:"can_retrieve_recordings"`
	CanDeleteRecordings   bool              `json:"can_delete_recordings"`
}

// UpsertMember adds a user to the room or updates their role and flags.
// Flag changes take effect on the member's next request.
func (h *Handler) UpsertMember(c *gin.Context) {
	room := h.requireRoomAdmin(c)
	if room == nil {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid userId")
		return
	}
	var req upsertMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role is required")
		return
	}
	if req.Role != models.MemberModerator && req.Role != models.MemberSpeaker {
		response.BadRequest(c, "role must be moderator or speaker")
		return
	}
	m := &models.RoomMember{
		RoomID:                room.ID,
		UserID:                userID,
		Role:                  req.Role,
		CanRecord:             req.CanRecord,
		CanRetrieveRecordings: req.CanRetrieveRecordings,
		CanDeleteRecordings:   req.CanDeleteRecordings,
	}
	if err := h.repo.AddMember(c.Request.Context(), m); err != nil {
		h.logger.Error("member upsert failed", zap.Error(err))
		response.Internal(c, "could not save member")
		return
	}
	response.OK(c, m)
}

// RemoveMember drops a user from the room.
func (h *Handler) RemoveMember(c *gin.Context) {
	room := h.requireRoomAdmin(c)
	if room == nil {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid userId")
		return
	}
	if err := h.repo.RemoveMember(c.Request.Context(), room.ID, userID); err != nil {
		h.logger.Error("member remove failed", zap.Error(err))
		response.Internal(c, "could not remove member")
		return
	}
	response.NoContent(c)
}
