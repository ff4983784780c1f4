// Package preferences stores console-wide defaults as a singleton object in
// the recording store, so every instance sees the same values without a
// schema migration.
package preferences

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/pkg/response"
	"github.com/roomkit/console-backend/pkg/storage"
)

// Preferences are the defaults applied to newly created rooms.
type Preferences struct {
	DefaultRecordingEnabled bool              `json:"default_recording_enabled"`
	DefaultRecordingAccess  models.AccessTier `json:"default_recording_access"`
	// RoomRetentionDays sets auto_deletion_at on new rooms when positive.
	RoomRetentionDays int `json:"room_retention_days"`
}

// Defaults are used until an admin saves preferences.
var Defaults = Preferences{
	DefaultRecordingEnabled: false,
	DefaultRecordingAccess:  models.AccessAdminModerator,
	RoomRetentionDays:       0,
}

// Store reads and writes the preferences singleton.
type Store struct {
	backend storage.Backend
	keys    storage.KeyBuilder
}

func NewStore(backend storage.Backend, keys storage.KeyBuilder) *Store {
	return &Store{backend: backend, keys: keys}
}

// Get returns the saved preferences, or the defaults when none exist yet.
func (s *Store) Get(ctx context.Context) (*Preferences, error) {
	var p Preferences
	err := storage.GetJSON(ctx, s.backend, s.keys.GlobalPreferences(), &p)
	if err != nil {
		if storage.IsNotFound(err) {
			d := Defaults
			return &d, nil
		}
		return nil, err
	}
	return &p, nil
}

// Save replaces the preferences singleton.
func (s *Store) Save(ctx context.Context, p *Preferences) error {
	return storage.PutJSON(ctx, s.backend, s.keys.GlobalPreferences(), p)
}

// RoomDefaults adapts the stored preferences for room creation. A backend
// outage degrades to the built-in defaults rather than failing the request.
func (s *Store) RoomDefaults(ctx context.Context) (bool, models.AccessTier, int) {
	p, err := s.Get(ctx)
	if err != nil {
		p = &Defaults
	}
	return p.DefaultRecordingEnabled, p.DefaultRecordingAccess, p.RoomRetentionDays
}

// Handler exposes preferences to admins.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /preferences.
func (h *Handler) Get(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("load preferences", zap.Error(err))
		response.ServiceUnavailable(c, "preferences unavailable")
		return
	}
	response.OK(c, p)
}

// Update handles PUT /preferences (admin only).
func (h *Handler) Update(c *gin.Context) {
	var p Preferences
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid preferences body")
		return
	}
	if p.DefaultRecordingAccess == "" {
		p.DefaultRecordingAccess = models.AccessAdminModerator
	}
	if !models.ValidAccessTier(p.DefaultRecordingAccess) {
		response.BadRequest(c, "invalid default_recording_access tier")
		return
	}
	if p.RoomRetentionDays < 0 {
		response.BadRequest(c, "room_retention_days must not be negative")
		return
	}
	if err := h.store.Save(c.Request.Context(), &p); err != nil {
		h.logger.Error("save preferences", zap.Error(err))
		response.ServiceUnavailable(c, "could not save preferences")
		return
	}
	response.OK(c, p)
}
