package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessTier says which room roles may retrieve a recording.
type AccessTier string

const (
	AccessAdmin                 AccessTier = "admin"
	AccessAdminModerator        AccessTier = "admin_moderator"
	AccessAdminModeratorSpeaker AccessTier = "admin_moderator_speaker"
)

// ValidAccessTier reports whether t is one of the three tiers.
func ValidAccessTier(t AccessTier) bool {
	switch t {
	case AccessAdmin, AccessAdminModerator, AccessAdminModeratorSpeaker:
		return true
	}
	return false
}

// RecordingConfig is the per-room recording configuration, owned by the room
// admins through the console. AllowAccessTo is snapshotted into each session
// at start time so later changes never affect already-produced recordings.
type RecordingConfig struct {
	Enabled       bool       `json:"enabled"`
	AllowAccessTo AccessTier `json:"allow_access_to"`
}

// Room is a meeting room.
type Room struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	Recording      RecordingConfig `json:"recording"`
	AutoDeletionAt *time.Time      `json:"auto_deletion_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// MemberRole is a member's role inside one room.
type MemberRole string

const (
	MemberModerator MemberRole = "moderator"
	MemberSpeaker   MemberRole = "speaker"
)

// RoomMember is a user's membership in a room with granular permission flags.
// Flags are read on every call; revocation takes effect immediately.
type RoomMember struct {
	RoomID                uuid.UUID  `json:"room_id"`
	UserID                uuid.UUID  `json:"user_id"`
	Role                  MemberRole `json:"role"`
	CanRecord             bool       `json:"can_record"`
	CanRetrieveRecordings bool       `json:"can_retrieve_recordings"`
	CanDeleteRecordings   bool       `json:"can_delete_recordings"`
	CreatedAt             time.Time  `json:"created_at"`
}
