package recordings

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/pkg/storage"
)

// SessionStore persists RecordingSession records as JSON objects in the
// storage backend, next to the media artifacts they point to. All paths go
// through the backend's KeyBuilder; transient storage failures are retried up
// to the configured budget before surfacing ErrStorageUnavailable.
type SessionStore struct {
	backend storage.Backend
	keys    storage.KeyBuilder
	retries int
	logger  *zap.Logger
}

// NewSessionStore creates a session store.
func NewSessionStore(backend storage.Backend, keys storage.KeyBuilder, retries int, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 1 {
		retries = 3
	}
	return &SessionStore{backend: backend, keys: keys, retries: retries, logger: logger}
}

// MediaKey returns the backend key of a recording's media artifact.
func (s *SessionStore) MediaKey(roomID, recordingID uuid.UUID) string {
	return s.keys.RecordingMedia(roomID.String(), recordingID.String())
}

func (s *SessionStore) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if storage.IsNotFound(err) {
		return ErrNotFound
	}
	if storage.IsTransient(err) {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}
	return err
}

// Save writes the session metadata object.
func (s *SessionStore) Save(ctx context.Context, sess *models.RecordingSession) error {
	key := s.keys.RecordingMeta(sess.RoomID.String(), sess.ID.String())
	err := storage.WithRetry(ctx, s.retries, func() error {
		return storage.PutJSON(ctx, s.backend, key, sess)
	})
	return s.mapErr(err)
}

// Get reads one session, or ErrNotFound.
func (s *SessionStore) Get(ctx context.Context, roomID, recordingID uuid.UUID) (*models.RecordingSession, error) {
	key := s.keys.RecordingMeta(roomID.String(), recordingID.String())
	var sess models.RecordingSession
	err := storage.WithRetry(ctx, s.retries, func() error {
		return storage.GetJSON(ctx, s.backend, key, &sess)
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return &sess, nil
}

// ListByRoom returns all sessions of a room, newest first.
func (s *SessionStore) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.RecordingSession, error) {
	prefix := s.keys.RoomMetaPrefix(roomID.String())
	var keys []string
	err := storage.WithRetry(ctx, s.retries, func() error {
		var listErr error
		keys, listErr = s.backend.List(ctx, prefix)
		return listErr
	})
	if err != nil {
		return nil, s.mapErr(err)
	}

	var list []models.RecordingSession
	for _, key := range keys {
		// The room prefix may also cover media objects; session metadata is
		// always a .json object.
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		var sess models.RecordingSession
		err := storage.WithRetry(ctx, s.retries, func() error {
			return storage.GetJSON(ctx, s.backend, key, &sess)
		})
		if err != nil {
			if storage.IsNotFound(err) {
				continue // deleted between list and get
			}
			return nil, s.mapErr(err)
		}
		list = append(list, sess)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartedAt.After(list[j].StartedAt)
	})
	return list, nil
}

// FindLive returns the room's session in STARTING or ACTIVE, or nil.
func (s *SessionStore) FindLive(ctx context.Context, roomID uuid.UUID) (*models.RecordingSession, error) {
	list, err := s.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Status.Live() {
			return &list[i], nil
		}
	}
	return nil, nil
}

// DeleteMeta removes the session metadata object.
func (s *SessionStore) DeleteMeta(ctx context.Context, roomID, recordingID uuid.UUID) error {
	key := s.keys.RecordingMeta(roomID.String(), recordingID.String())
	err := storage.WithRetry(ctx, s.retries, func() error {
		return s.backend.Delete(ctx, key)
	})
	return s.mapErr(err)
}

// DeleteMedia removes the media artifact.
func (s *SessionStore) DeleteMedia(ctx context.Context, roomID, recordingID uuid.UUID) error {
	err := storage.WithRetry(ctx, s.retries, func() error {
		return s.backend.Delete(ctx, s.MediaKey(roomID, recordingID))
	})
	return s.mapErr(err)
}

// OpenMedia returns the media artifact stream. Caller must close it.
func (s *SessionStore) OpenMedia(ctx context.Context, sess *models.RecordingSession) (io.ReadCloser, error) {
	if sess.MediaKey == "" {
		return nil, ErrNotFound
	}
	var rc io.ReadCloser
	err := storage.WithRetry(ctx, s.retries, func() error {
		var getErr error
		rc, getErr = s.backend.Get(ctx, sess.MediaKey)
		return getErr
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return rc, nil
}

// PresignMedia returns a time-limited URL for the media artifact.
func (s *SessionStore) PresignMedia(ctx context.Context, sess *models.RecordingSession, ttl time.Duration) (string, error) {
	if sess.MediaKey == "" {
		return "", ErrNotFound
	}
	var url string
	err := storage.WithRetry(ctx, s.retries, func() error {
		var presignErr error
		url, presignErr = s.backend.PresignGet(ctx, sess.MediaKey, ttl)
		return presignErr
	})
	if err != nil {
		return "", s.mapErr(err)
	}
	return url, nil
}
