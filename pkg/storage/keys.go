package storage

import "path"

// KeyBuilder maps logical entities to backend object keys. Each provider ships
// its own layout; orchestration code only ever goes through this interface.
type KeyBuilder interface {
	// RecordingMedia is the key of the media artifact for a recording.
	RecordingMedia(roomID, recordingID string) string
	// RecordingMeta is the key of the recording's session metadata JSON.
	RecordingMeta(roomID, recordingID string) string
	// RoomMetaPrefix lists all session metadata objects of a room.
	RoomMetaPrefix(roomID string) string
	// GlobalPreferences is the singleton key for console-wide preferences.
	GlobalPreferences() string
}

// S3Keys is the hierarchical layout used on AWS S3:
// rooms/{roomID}/recordings/{recordingID}/{media|session.json}.
type S3Keys struct{}

func (S3Keys) RecordingMedia(roomID, recordingID string) string {
	return path.Join("rooms", roomID, "recordings", recordingID, "media")
}

func (S3Keys) RecordingMeta(roomID, recordingID string) string {
	return path.Join("rooms", roomID, "recordings", recordingID, "session.json")
}

func (S3Keys) RoomMetaPrefix(roomID string) string {
	return path.Join("rooms", roomID, "recordings") + "/"
}

func (S3Keys) GlobalPreferences() string {
	return ".preferences/global.json"
}

// CompatKeys is the flat layout used on S3-compatible stores where shallow
// listings are cheaper: media/{roomID}--{recordingID} and
// meta/{roomID}--{recordingID}.json.
type CompatKeys struct{}

func (CompatKeys) RecordingMedia(roomID, recordingID string) string {
	return "media/" + roomID + "--" + recordingID
}

func (CompatKeys) RecordingMeta(roomID, recordingID string) string {
	return "meta/" + roomID + "--" + recordingID + ".json"
}

func (CompatKeys) RoomMetaPrefix(roomID string) string {
	return "meta/" + roomID + "--"
}

func (CompatKeys) GlobalPreferences() string {
	return "meta/preferences.json"
}
