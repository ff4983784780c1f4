package models

import "github.com/google/uuid"

// WebhookEventType is the internal vocabulary for media-server notifications.
type WebhookEventType string

const (
	WebhookMeetingStarted   WebhookEventType = "meeting_started"
	WebhookMeetingEnded     WebhookEventType = "meeting_ended"
	WebhookRecordingStarted WebhookEventType = "recording_started"
	WebhookRecordingUpdated WebhookEventType = "recording_updated"
	WebhookRecordingEnded   WebhookEventType = "recording_ended"
)

// WebhookEvent is a normalized media-server notification. Transient; only the
// event ID survives (in the dedup window) after handling.
type WebhookEvent struct {
	EventID     string
	Type        WebhookEventType
	RoomID      uuid.UUID
	RecordingID uuid.UUID // uuid.Nil for meeting-level events
	DurationMs  int64
	SizeBytes   int64
	// Failure carries the provider-reported error on recording_ended, empty on
	// clean completion.
	Failure string
}
