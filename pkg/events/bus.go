// Package events is the cross-process publish/subscribe fan-out for domain
// events. Delivery is at-least-once; handlers must be idempotent.
package events

import "context"

// Topic names used across the backend.
const (
	// RoomTopicPrefix + roomID carries recording lifecycle events for a room.
	RoomTopicPrefix = "room:"
)

// Event names published on room topics.
const (
	EventRecordingStarting = "recording_starting"
	EventRecordingActive   = "recording_active"
	EventRecordingStopping = "recording_stopping"
	EventRecordingComplete = "recording_complete"
	EventRecordingFailed   = "recording_failed"
	EventRecordingDeleted  = "recording_deleted"
)

// Envelope is the wire shape of a published event.
type Envelope struct {
	Event string `json:"event"`
	Data  []byte `json:"data"`
	At    int64  `json:"at"`
}

// Bus fans events out to every subscribed process.
type Bus interface {
	Publish(ctx context.Context, topic, event string, payload []byte) error
	// Subscribe invokes handler for each event on topic until cancel is called.
	Subscribe(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// RoomTopic returns the topic carrying a room's recording events.
func RoomTopic(roomID string) string { return RoomTopicPrefix + roomID }
