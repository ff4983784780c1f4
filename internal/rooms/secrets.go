package rooms

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/roomkit/console-backend/internal/models"
)

// ErrInvalidSecret is returned for malformed or forged access secrets.
var ErrInvalidSecret = errors.New("invalid access secret")

// SecretService derives shareable access secrets deterministically from room
// identity plus role, so secrets need no storage or expiry bookkeeping beyond
// the room's own lifecycle.
type SecretService struct {
	key []byte
}

// NewSecretService creates a secret service with the given derivation key.
func NewSecretService(key string) *SecretService {
	return &SecretService{key: []byte(key)}
}

// Secret is a parsed access secret: a capability scoped to one room and one
// role tier. Private secrets additionally require the holder to be
// authenticated.
type Secret struct {
	RoomID  uuid.UUID
	Role    models.MemberRole
	Private bool
}

func (s *SecretService) mac(roomID uuid.UUID, role models.MemberRole, private bool) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(roomID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(role))
	h.Write([]byte("|"))
	if private {
		h.Write([]byte("1"))
	} else {
		h.Write([]byte("0"))
	}
	return h.Sum(nil)[:16]
}

// Issue returns the secret token for a room, role tier and privacy flag.
func (s *SecretService) Issue(roomID uuid.UUID, role models.MemberRole, private bool) string {
	priv := "0"
	if private {
		priv = "1"
	}
	payload := roomID.String() + "|" + string(role) + "|" + priv
	mac := s.mac(roomID, role, private)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + base64.RawURLEncoding.EncodeToString(mac)
}

// Parse validates a token and returns the capability it encodes.
func (s *SecretService) Parse(token string) (*Secret, error) {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return nil, ErrInvalidSecret
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return nil, ErrInvalidSecret
	}
	macGot, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return nil, ErrInvalidSecret
	}
	parts := strings.Split(string(payloadRaw), "|")
	if len(parts) != 3 {
		return nil, ErrInvalidSecret
	}
	roomID, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, ErrInvalidSecret
	}
	role := models.MemberRole(parts[1])
	if role != models.MemberModerator && role != models.MemberSpeaker {
		return nil, ErrInvalidSecret
	}
	private := parts[2] == "1"
	if !hmac.Equal(macGot, s.mac(roomID, role, private)) {
		return nil, ErrInvalidSecret
	}
	return &Secret{RoomID: roomID, Role: role, Private: private}, nil
}
