package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus is the recording session lifecycle state. Transitions are
// monotonic; a session never leaves a terminal state.
type RecordingStatus string

const (
	RecordingStarting RecordingStatus = "starting"
	RecordingActive   RecordingStatus = "active"
	RecordingStopping RecordingStatus = "stopping"
	RecordingComplete RecordingStatus = "complete"
	RecordingFailed   RecordingStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RecordingStatus) Terminal() bool {
	return s == RecordingComplete || s == RecordingFailed
}

// Live reports whether the session counts toward the one-per-room limit.
func (s RecordingStatus) Live() bool {
	return s == RecordingStarting || s == RecordingActive
}

// RecordingSession is the persisted record of one recording. It lives as a
// JSON object in the storage backend, next to the media artifact it points to.
type RecordingSession struct {
	ID       uuid.UUID       `json:"id"`
	RoomID   uuid.UUID       `json:"room_id"`
	RoomName string          `json:"room_name"`
	Status   RecordingStatus `json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`

	// MediaKey is the backend-relative key of the media artifact, set when the
	// media server reports the recording ended.
	MediaKey string `json:"media_key,omitempty"`

	// AccessAllowList is the room's allow_access_to tier snapshotted at start.
	AccessAllowList AccessTier `json:"access_allow_list"`

	// FailureReason is set when Status is failed.
	FailureReason string `json:"failure_reason,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
