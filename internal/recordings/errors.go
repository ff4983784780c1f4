package recordings

import "errors"

// Error taxonomy for recording orchestration. Handlers map each kind to a
// distinct HTTP outcome so a conflict is never mistaken for a denial.
var (
	// ErrAlreadyRecording: the room already has a session starting or active.
	// Definitive; retrying without new information cannot change it.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotActive: stop requested for a session that is not active.
	ErrNotActive = errors.New("recording not active")
	// ErrNotTerminal: delete requested for a session still in flight.
	ErrNotTerminal = errors.New("recording not in a terminal state")
	// ErrLockTimeout: the per-room lock could not be acquired in time.
	// Retryable; the caller may resubmit.
	ErrLockTimeout = errors.New("room is busy, try again")
	// ErrRecordingDisabled: the room's configuration has recording off.
	ErrRecordingDisabled = errors.New("recording disabled for this room")
	// ErrForbidden: the caller's credential does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound: no such room or recording.
	ErrNotFound = errors.New("recording not found")
	// ErrStorageUnavailable: storage kept failing after the retry budget.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrPartialDelete: deletion removed only part of a recording; callers
	// should retry to remove the remainder.
	ErrPartialDelete = errors.New("recording partially deleted")
	// ErrInvalidSignature: webhook signature verification failed.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
