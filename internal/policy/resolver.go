// Package policy decides what a caller may do with recordings. Resolution is
// a pure function of the caller's credential and the target recording; nothing
// is cached, so revoked permissions take effect on the next call.
package policy

import (
	"github.com/google/uuid"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/internal/rooms"
)

// CallerKind is the credential kind a request authenticated with.
type CallerKind string

const (
	CallerAPIKey CallerKind = "api_key"
	CallerAdmin  CallerKind = "admin"
	CallerOwner  CallerKind = "owner"
	CallerMember CallerKind = "member"
	CallerSecret CallerKind = "secret"
)

// Caller is the resolved credential of a request.
type Caller struct {
	Kind   CallerKind
	UserID uuid.UUID
	// Member carries the stored permission flags for CallerMember.
	Member *models.RoomMember
	// Secret carries the parsed capability for CallerSecret.
	Secret *rooms.Secret
	// Authenticated is true when the request also carried a valid session.
	// Private secrets require it.
	Authenticated bool
}

// Decision is the per-operation outcome for one caller and one recording.
type Decision struct {
	CanView     bool
	CanRecord   bool
	CanDelete   bool
	CanRetrieve bool
}

var fullAccess = Decision{CanView: true, CanRecord: true, CanDelete: true, CanRetrieve: true}

// Resolve evaluates the caller against a recording. rec may be nil for
// operations that do not target an existing recording (e.g. start).
func Resolve(caller Caller, rec *models.RecordingSession) Decision {
	switch caller.Kind {
	case CallerAPIKey, CallerAdmin, CallerOwner:
		return fullAccess
	case CallerMember:
		m := caller.Member
		if m == nil {
			return Decision{}
		}
		return Decision{
			CanView:     m.CanRetrieveRecordings,
			CanRecord:   m.CanRecord,
			CanDelete:   m.CanDeleteRecordings,
			CanRetrieve: m.CanRetrieveRecordings,
		}
	case CallerSecret:
		s := caller.Secret
		if s == nil {
			return Decision{}
		}
		if s.Private && !caller.Authenticated {
			return Decision{}
		}
		d := Decision{
			// Moderator-tier secrets may start/stop recordings in their room.
			CanRecord: s.Role == models.MemberModerator,
		}
		if rec != nil && tierAdmits(rec.AccessAllowList, s.Role) {
			d.CanView = true
			d.CanRetrieve = true
		}
		return d
	}
	return Decision{}
}

// tierAdmits reports whether a secret of the given role may access a recording
// snapshotted at the given tier.
func tierAdmits(tier models.AccessTier, role models.MemberRole) bool {
	switch tier {
	case models.AccessAdminModerator:
		return role == models.MemberModerator
	case models.AccessAdminModeratorSpeaker:
		return role == models.MemberModerator || role == models.MemberSpeaker
	}
	// AccessAdmin (and anything unknown) admits no secret holders.
	return false
}
