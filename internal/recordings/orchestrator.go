package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/media"
	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/internal/policy"
	"github.com/roomkit/console-backend/pkg/events"
	"github.com/roomkit/console-backend/pkg/lock"
)

// LockKeyPrefix scopes recording locks in the shared lock store.
const LockKeyPrefix = "recording-lock:"

// RoomDirectory is the slice of room state the orchestrator needs.
type RoomDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// Config holds orchestration tunables. LockLease must be shorter than
// ReconcileTimeout so a crashed lock holder cannot overlap with the sweep.
type Config struct {
	LockLease        time.Duration
	LockWait         time.Duration
	ReconcileTimeout time.Duration
	PresignTTL       time.Duration
}

// Orchestrator drives the per-room recording state machine. Every transition
// for a room runs inside the same distributed lock, which totally orders
// operator commands, webhook events and reconciliation sweeps per room while
// leaving distinct rooms fully concurrent.
type Orchestrator struct {
	store  *SessionStore
	rooms  RoomDirectory
	locker lock.Locker
	bus    events.Bus
	media  media.Controller
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewOrchestrator wires the orchestrator from its collaborators.
func NewOrchestrator(store *SessionStore, rooms RoomDirectory, locker lock.Locker, bus events.Bus, ctrl media.Controller, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 15 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	if cfg.ReconcileTimeout <= 0 {
		cfg.ReconcileTimeout = 2 * time.Minute
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	return &Orchestrator{
		store:  store,
		rooms:  rooms,
		locker: locker,
		bus:    bus,
		media:  ctrl,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

func lockKey(roomID uuid.UUID) string { return LockKeyPrefix + roomID.String() }

// withRoomLock runs fn inside the room's critical section.
func (o *Orchestrator) withRoomLock(ctx context.Context, roomID uuid.UUID, fn func(ctx context.Context) error) error {
	h, err := o.locker.Acquire(ctx, lockKey(roomID), o.cfg.LockLease, o.cfg.LockWait)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return ErrLockTimeout
		}
		return err
	}
	defer func() {
		if relErr := o.locker.Release(ctx, h); relErr != nil && !errors.Is(relErr, lock.ErrNotHeld) {
			o.logger.Warn("lock release failed", zap.String("room_id", roomID.String()), zap.Error(relErr))
		}
	}()
	return fn(ctx)
}

func (o *Orchestrator) publish(ctx context.Context, event string, sess *models.RecordingSession) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, events.RoomTopic(sess.RoomID.String()), event, payload); err != nil {
		o.logger.Warn("event publish failed",
			zap.String("event", event),
			zap.String("recording_id", sess.ID.String()),
			zap.Error(err))
	}
}

// Start begins a new recording for the room. Fails with ErrAlreadyRecording
// when a session is already starting or active, ErrLockTimeout when the room
// lock cannot be acquired in time.
func (o *Orchestrator) Start(ctx context.Context, roomID uuid.UUID, caller policy.Caller) (*models.RecordingSession, error) {
	room, err := o.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotFound
	}
	if !policy.Resolve(caller, nil).CanRecord {
		return nil, ErrForbidden
	}
	if !room.Recording.Enabled {
		return nil, ErrRecordingDisabled
	}

	var sess *models.RecordingSession
	err = o.withRoomLock(ctx, roomID, func(ctx context.Context) error {
		live, err := o.store.FindLive(ctx, roomID)
		if err != nil {
			return err
		}
		if live != nil {
			return ErrAlreadyRecording
		}

		now := o.now()
		sess = &models.RecordingSession{
			ID:       uuid.New(),
			RoomID:   room.ID,
			RoomName: room.Name,
			Status:   models.RecordingStarting,
			// Snapshot the room's access tier: later config changes must not
			// retroactively alter access to this recording.
			AccessAllowList: room.Recording.AllowAccessTo,
			StartedAt:       now,
			UpdatedAt:       now,
		}
		if err := o.media.StartRecording(ctx, room.ID, sess.ID); err != nil {
			return fmt.Errorf("media server start: %w", err)
		}
		return o.store.Save(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	o.publish(ctx, events.EventRecordingStarting, sess)
	return sess, nil
}

// Stop requests the end of an active recording. The session settles to
// COMPLETE or FAILED asynchronously via the recording_ended webhook, with the
// reconciliation sweep as backstop.
func (o *Orchestrator) Stop(ctx context.Context, roomID, recordingID uuid.UUID, caller policy.Caller) (*models.RecordingSession, error) {
	if !policy.Resolve(caller, nil).CanRecord {
		return nil, ErrForbidden
	}

	var sess *models.RecordingSession
	err := o.withRoomLock(ctx, roomID, func(ctx context.Context) error {
		var err error
		sess, err = o.store.Get(ctx, roomID, recordingID)
		if err != nil {
			return err
		}
		if sess.Status != models.RecordingActive {
			return ErrNotActive
		}
		sess.Status = models.RecordingStopping
		sess.UpdatedAt = o.now()
		if err := o.store.Save(ctx, sess); err != nil {
			return err
		}
		if err := o.media.StopRecording(ctx, roomID, recordingID); err != nil {
			// State stays STOPPING; the ended webhook or the sweep settles it.
			return fmt.Errorf("media server stop: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.publish(ctx, events.EventRecordingStopping, sess)
	return sess, nil
}

// HandleEvent applies a normalized webhook event to the room's state machine.
// Duplicate and out-of-order deliveries are no-ops: only forward transitions
// are accepted.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev models.WebhookEvent) error {
	switch ev.Type {
	case models.WebhookMeetingStarted:
		o.logger.Debug("meeting started", zap.String("room_id", ev.RoomID.String()))
		return nil
	case models.WebhookMeetingEnded:
		// The meeting ending implies any live recording is wrapping up; move
		// it to STOPPING so the sweep can settle it if recording_ended never
		// arrives.
		return o.withRoomLock(ctx, ev.RoomID, func(ctx context.Context) error {
			return o.stopLiveOnMeetingEnd(ctx, ev.RoomID)
		})
	case models.WebhookRecordingStarted, models.WebhookRecordingUpdated, models.WebhookRecordingEnded:
		return o.withRoomLock(ctx, ev.RoomID, func(ctx context.Context) error {
			return o.applyRecordingEvent(ctx, ev)
		})
	default:
		o.logger.Warn("unhandled event type", zap.String("type", string(ev.Type)))
		return nil
	}
}

// stopLiveOnMeetingEnd runs inside the room lock. The media server ends any
// in-flight recording on its own when a meeting closes, so no stop instruction
// is sent here; the session just advances to STOPPING to await recording_ended.
func (o *Orchestrator) stopLiveOnMeetingEnd(ctx context.Context, roomID uuid.UUID) error {
	sess, err := o.store.FindLive(ctx, roomID)
	if err != nil {
		return err
	}
	if sess == nil || sess.Status == models.RecordingStopping {
		return nil
	}
	sess.Status = models.RecordingStopping
	sess.UpdatedAt = o.now()
	if err := o.store.Save(ctx, sess); err != nil {
		return err
	}
	o.publish(ctx, events.EventRecordingStopping, sess)
	return nil
}

// applyRecordingEvent runs inside the room lock.
func (o *Orchestrator) applyRecordingEvent(ctx context.Context, ev models.WebhookEvent) error {
	sess, err := o.store.Get(ctx, ev.RoomID, ev.RecordingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown session: late event for a deleted recording, or a
			// recording this console never started. Acknowledge and drop.
			o.logger.Warn("event for unknown recording",
				zap.String("type", string(ev.Type)),
				zap.String("recording_id", ev.RecordingID.String()))
			return nil
		}
		return err
	}
	if sess.Status.Terminal() {
		o.logger.Debug("event on terminal session ignored",
			zap.String("type", string(ev.Type)),
			zap.String("recording_id", sess.ID.String()),
			zap.String("status", string(sess.Status)))
		return nil
	}

	switch ev.Type {
	case models.WebhookRecordingStarted:
		if sess.Status != models.RecordingStarting {
			return nil // duplicate or out of order
		}
		sess.Status = models.RecordingActive
		sess.UpdatedAt = o.now()
		if err := o.store.Save(ctx, sess); err != nil {
			return err
		}
		o.publish(ctx, events.EventRecordingActive, sess)

	case models.WebhookRecordingUpdated:
		if ev.DurationMs > 0 {
			sess.DurationMs = ev.DurationMs
		}
		if ev.SizeBytes > 0 {
			sess.SizeBytes = ev.SizeBytes
		}
		sess.UpdatedAt = o.now()
		return o.store.Save(ctx, sess)

	case models.WebhookRecordingEnded:
		now := o.now()
		sess.EndedAt = &now
		sess.UpdatedAt = now
		if ev.DurationMs > 0 {
			sess.DurationMs = ev.DurationMs
		}
		if ev.SizeBytes > 0 {
			sess.SizeBytes = ev.SizeBytes
		}
		if ev.Failure != "" {
			sess.Status = models.RecordingFailed
			sess.FailureReason = ev.Failure
		} else {
			sess.Status = models.RecordingComplete
			sess.MediaKey = o.store.MediaKey(sess.RoomID, sess.ID)
		}
		if err := o.store.Save(ctx, sess); err != nil {
			return err
		}
		if sess.Status == models.RecordingFailed {
			o.publish(ctx, events.EventRecordingFailed, sess)
		} else {
			o.publish(ctx, events.EventRecordingComplete, sess)
		}
	}
	return nil
}

// Delete removes a terminal recording: media object first, then metadata.
// Partial failure surfaces ErrPartialDelete so the caller can retry the rest.
func (o *Orchestrator) Delete(ctx context.Context, roomID, recordingID uuid.UUID, caller policy.Caller) error {
	return o.withRoomLock(ctx, roomID, func(ctx context.Context) error {
		sess, err := o.store.Get(ctx, roomID, recordingID)
		if err != nil {
			return err
		}
		if !policy.Resolve(caller, sess).CanDelete {
			return ErrForbidden
		}
		if !sess.Status.Terminal() {
			return ErrNotTerminal
		}

		if err := o.store.DeleteMedia(ctx, roomID, recordingID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: media object: %s", ErrPartialDelete, err)
		}
		if err := o.store.DeleteMeta(ctx, roomID, recordingID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: metadata: %s", ErrPartialDelete, err)
		}
		o.publish(ctx, events.EventRecordingDeleted, sess)
		return nil
	})
}

// BulkDeleteResult reports the outcome of a bulk delete per recording.
type BulkDeleteResult struct {
	Deleted []uuid.UUID          `json:"deleted"`
	Failed  map[uuid.UUID]string `json:"failed,omitempty"`
}

// BulkDelete deletes several recordings of one room, continuing past
// individual failures.
func (o *Orchestrator) BulkDelete(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID, caller policy.Caller) (*BulkDeleteResult, error) {
	res := &BulkDeleteResult{Failed: make(map[uuid.UUID]string)}
	for _, id := range ids {
		if err := o.Delete(ctx, roomID, id, caller); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	if len(res.Failed) == 0 {
		res.Failed = nil
	}
	return res, nil
}

// List returns the room's sessions the caller may view. Policy is re-evaluated
// per session against its snapshotted access tier.
func (o *Orchestrator) List(ctx context.Context, roomID uuid.UUID, caller policy.Caller) ([]models.RecordingSession, error) {
	list, err := o.store.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	visible := make([]models.RecordingSession, 0, len(list))
	for i := range list {
		if policy.Resolve(caller, &list[i]).CanView {
			visible = append(visible, list[i])
		}
	}
	return visible, nil
}

// Get returns one session if the caller may view it.
func (o *Orchestrator) Get(ctx context.Context, roomID, recordingID uuid.UUID, caller policy.Caller) (*models.RecordingSession, error) {
	sess, err := o.store.Get(ctx, roomID, recordingID)
	if err != nil {
		return nil, err
	}
	if !policy.Resolve(caller, sess).CanView {
		return nil, ErrForbidden
	}
	return sess, nil
}

// Media streams the finished recording's media artifact.
func (o *Orchestrator) Media(ctx context.Context, roomID, recordingID uuid.UUID, caller policy.Caller) (io.ReadCloser, *models.RecordingSession, error) {
	sess, err := o.store.Get(ctx, roomID, recordingID)
	if err != nil {
		return nil, nil, err
	}
	if !policy.Resolve(caller, sess).CanRetrieve {
		return nil, nil, ErrForbidden
	}
	if sess.Status != models.RecordingComplete {
		return nil, nil, ErrNotFound
	}
	rc, err := o.store.OpenMedia(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	return rc, sess, nil
}

// AccessURL returns a time-limited URL for the finished recording.
func (o *Orchestrator) AccessURL(ctx context.Context, roomID, recordingID uuid.UUID, caller policy.Caller) (string, time.Duration, error) {
	sess, err := o.store.Get(ctx, roomID, recordingID)
	if err != nil {
		return "", 0, err
	}
	if !policy.Resolve(caller, sess).CanRetrieve {
		return "", 0, ErrForbidden
	}
	if sess.Status != models.RecordingComplete {
		return "", 0, ErrNotFound
	}
	url, err := o.store.PresignMedia(ctx, sess, o.cfg.PresignTTL)
	if err != nil {
		return "", 0, err
	}
	return url, o.cfg.PresignTTL, nil
}

// ReconcileRoom forces sessions stuck in STARTING or STOPPING beyond the
// reconciliation timeout into FAILED. It runs under the same per-room lock as
// every other transition, so concurrent sweeps from several processes settle
// each session exactly once. Returns the number of sessions failed.
func (o *Orchestrator) ReconcileRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	failed := 0
	err := o.withRoomLock(ctx, roomID, func(ctx context.Context) error {
		list, err := o.store.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		cutoff := o.now().Add(-o.cfg.ReconcileTimeout)
		for i := range list {
			sess := &list[i]
			stuck := sess.Status == models.RecordingStarting || sess.Status == models.RecordingStopping
			if !stuck || sess.UpdatedAt.After(cutoff) {
				continue
			}
			now := o.now()
			sess.Status = models.RecordingFailed
			sess.FailureReason = "timed out waiting for media server confirmation"
			sess.EndedAt = &now
			sess.UpdatedAt = now
			if err := o.store.Save(ctx, sess); err != nil {
				return err
			}
			o.publish(ctx, events.EventRecordingFailed, sess)
			failed++
		}
		return nil
	})
	return failed, err
}

// PurgeRoom deletes every recording of a room regardless of state, for room
// expiry cleanup. Returns the number of recordings removed.
func (o *Orchestrator) PurgeRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	purged := 0
	err := o.withRoomLock(ctx, roomID, func(ctx context.Context) error {
		list, err := o.store.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		for i := range list {
			sess := &list[i]
			if err := o.store.DeleteMedia(ctx, roomID, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: media object: %s", ErrPartialDelete, err)
			}
			if err := o.store.DeleteMeta(ctx, roomID, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: metadata: %s", ErrPartialDelete, err)
			}
			o.publish(ctx, events.EventRecordingDeleted, sess)
			purged++
		}
		return nil
	})
	return purged, err
}
