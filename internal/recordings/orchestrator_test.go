package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/internal/policy"
	"github.com/roomkit/console-backend/internal/rooms"
	"github.com/roomkit/console-backend/pkg/events"
	"github.com/roomkit/console-backend/pkg/lock"
	"github.com/roomkit/console-backend/pkg/storage"
)

func putFakeMedia(t *testing.T, f *fixture, recID uuid.UUID) string {
	t.Helper()
	key := f.store.MediaKey(f.room.ID, recID)
	if err := f.backend.Put(context.Background(), key, strings.NewReader("mp4"), 3, "video/mp4"); err != nil {
		t.Fatalf("put media: %v", err)
	}
	return key
}

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*models.Room
}

func (f *fakeRooms) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[id], nil
}

type fakeMedia struct {
	mu       sync.Mutex
	started  []uuid.UUID
	stopped  []uuid.UUID
	startErr error
	stopErr  error
}

func (f *fakeMedia) StartRecording(_ context.Context, _, recordingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, recordingID)
	return nil
}

func (f *fakeMedia) StopRecording(_ context.Context, _, recordingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, recordingID)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	store   *SessionStore
	backend *storage.MemoryBackend
	media   *fakeMedia
	bus     *events.MemoryBus
	room    *models.Room
	now     time.Time
	mu      sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := storage.NewMemoryBackend()
	store := NewSessionStore(backend, storage.S3Keys{}, 1, nil)
	room := &models.Room{
		ID:      uuid.New(),
		Name:    "standup",
		OwnerID: uuid.New(),
		Recording: models.RecordingConfig{
			Enabled:       true,
			AllowAccessTo: models.AccessAdminModeratorSpeaker,
		},
	}
	f := &fixture{
		store:   store,
		backend: backend,
		media:   &fakeMedia{},
		bus:     events.NewMemoryBus(),
		room:    room,
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	dir := &fakeRooms{rooms: map[uuid.UUID]*models.Room{room.ID: room}}
	f.orch = NewOrchestrator(store, dir, lock.NewMemoryLocker(), f.bus, f.media, Config{
		LockLease:        time.Second,
		LockWait:         2 * time.Second,
		ReconcileTimeout: 2 * time.Minute,
	}, nil)
	f.orch.SetClock(f.clock)
	return f
}

func adminCaller() policy.Caller {
	return policy.Caller{Kind: policy.CallerAdmin, UserID: uuid.New(), Authenticated: true}
}

func startedEvent(f *fixture, recID uuid.UUID) models.WebhookEvent {
	return models.WebhookEvent{
		EventID:     uuid.NewString(),
		Type:        models.WebhookRecordingStarted,
		RoomID:      f.room.ID,
		RecordingID: recID,
	}
}

func endedEvent(f *fixture, recID uuid.UUID, failure string) models.WebhookEvent {
	return models.WebhookEvent{
		EventID:     uuid.NewString(),
		Type:        models.WebhookRecordingEnded,
		RoomID:      f.room.ID,
		RecordingID: recID,
		DurationMs:  90_000,
		SizeBytes:   1 << 20,
		Failure:     failure,
	}
}

func TestStartCreatesStartingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.orch.Start(ctx, f.room.ID, adminCaller())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Status != models.RecordingStarting {
		t.Fatalf("status = %s, want %s", sess.Status, models.RecordingStarting)
	}
	if sess.RoomName != f.room.Name {
		t.Fatalf("room name not snapshotted: %q", sess.RoomName)
	}
	if sess.AccessAllowList != models.AccessAdminModeratorSpeaker {
		t.Fatalf("access tier not snapshotted: %q", sess.AccessAllowList)
	}
	if len(f.media.started) != 1 || f.media.started[0] != sess.ID {
		t.Fatalf("media server not asked to start %s", sess.ID)
	}
	got, err := f.store.Get(ctx, f.room.ID, sess.ID)
	if err != nil {
		t.Fatalf("get after start: %v", err)
	}
	if got.Status != models.RecordingStarting {
		t.Fatalf("persisted status = %s", got.Status)
	}
}

func TestStartRejectsSecondRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orch.Start(ctx, f.room.ID, adminCaller()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := f.orch.Start(ctx, f.room.ID, adminCaller()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second start err = %v, want ErrAlreadyRecording", err)
	}
}

func TestStartDisabledRoom(t *testing.T) {
	f := newFixture(t)
	f.room.Recording.Enabled = false

	if _, err := f.orch.Start(context.Background(), f.room.ID, adminCaller()); !errors.Is(err, ErrRecordingDisabled) {
		t.Fatalf("err = %v, want ErrRecordingDisabled", err)
	}
}

func TestStartMediaFailureLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	f.media.startErr = errors.New("connection refused")

	if _, err := f.orch.Start(context.Background(), f.room.ID, adminCaller()); err == nil {
		t.Fatal("expected start error")
	}
	list, err := f.store.ListByRoom(context.Background(), f.room.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("found %d sessions after failed start, want 0", len(list))
	}
}

func TestConcurrentStartOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var ok, conflict atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Start(ctx, f.room.ID, adminCaller())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyRecording):
				conflict.Add(1)
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Fatalf("%d starts succeeded, want exactly 1", ok.Load())
	}
	if conflict.Load() != n-1 {
		t.Fatalf("%d conflicts, want %d", conflict.Load(), n-1)
	}
	live, err := f.store.FindLive(ctx, f.room.ID)
	if err != nil || live == nil {
		t.Fatalf("no live session after winner (err=%v)", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	var mu sync.Mutex
	var seen []string
	cancel, err := f.bus.Subscribe(events.RoomTopic(f.room.ID.String()), func(event string, _ []byte) {
		mu.Lock()
		seen = append(seen, event)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	sess, err := f.orch.Start(ctx, f.room.ID, caller)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.orch.HandleEvent(ctx, startedEvent(f, sess.ID)); err != nil {
		t.Fatalf("started event: %v", err)
	}
	got, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingActive {
		t.Fatalf("status after started = %s", got.Status)
	}

	if _, err := f.orch.Stop(ctx, f.room.ID, sess.ID, caller); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, _ = f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingStopping {
		t.Fatalf("status after stop = %s", got.Status)
	}
	if len(f.media.stopped) != 1 {
		t.Fatalf("media server not asked to stop")
	}

	// Media artifact lands before the ended event.
	mediaKey := putFakeMedia(t, f, sess.ID)
	if err := f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, "")); err != nil {
		t.Fatalf("ended event: %v", err)
	}

	got, _ = f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingComplete {
		t.Fatalf("status after ended = %s", got.Status)
	}
	if got.MediaKey != mediaKey {
		t.Fatalf("media key = %q, want %q", got.MediaKey, mediaKey)
	}
	if got.DurationMs != 90_000 || got.SizeBytes != 1<<20 {
		t.Fatalf("metrics not recorded: dur=%d size=%d", got.DurationMs, got.SizeBytes)
	}
	if got.EndedAt == nil {
		t.Fatal("ended_at not set")
	}

	rc, _, err := f.orch.Media(ctx, f.room.ID, sess.ID, caller)
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	rc.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		events.EventRecordingStarting,
		events.EventRecordingActive,
		events.EventRecordingStopping,
		events.EventRecordingComplete,
	}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestStopRequiresActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, err := f.orch.Start(ctx, f.room.ID, caller)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Still STARTING.
	if _, err := f.orch.Stop(ctx, f.room.ID, sess.ID, caller); !errors.Is(err, ErrNotActive) {
		t.Fatalf("stop on starting err = %v, want ErrNotActive", err)
	}
}

func TestMeetingEndedStopsLiveRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	if err := f.orch.HandleEvent(ctx, startedEvent(f, sess.ID)); err != nil {
		t.Fatalf("started: %v", err)
	}

	ended := models.WebhookEvent{
		EventID: uuid.NewString(),
		Type:    models.WebhookMeetingEnded,
		RoomID:  f.room.ID,
	}
	if err := f.orch.HandleEvent(ctx, ended); err != nil {
		t.Fatalf("meeting ended: %v", err)
	}
	got, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingStopping {
		t.Fatalf("status after meeting end = %s, want stopping", got.Status)
	}
	f.media.mu.Lock()
	stops := len(f.media.stopped)
	f.media.mu.Unlock()
	if stops != 0 {
		t.Fatalf("stop calls = %d, want 0", stops)
	}

	// No live session left: another meeting end is a no-op.
	if err := f.orch.HandleEvent(ctx, ended); err != nil {
		t.Fatalf("repeat meeting ended: %v", err)
	}

	// The server still sends recording_ended; the session settles normally.
	putFakeMedia(t, f, sess.ID)
	if err := f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, "")); err != nil {
		t.Fatalf("recording ended: %v", err)
	}
	got, _ = f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingComplete {
		t.Fatalf("final status = %s, want complete", got.Status)
	}
}

func TestEndedEventFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	if err := f.orch.HandleEvent(ctx, startedEvent(f, sess.ID)); err != nil {
		t.Fatalf("started: %v", err)
	}
	if err := f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, "disk full")); err != nil {
		t.Fatalf("ended: %v", err)
	}

	got, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailureReason != "disk full" {
		t.Fatalf("failure reason = %q", got.FailureReason)
	}
	if got.MediaKey != "" {
		t.Fatalf("failed recording should have no media key, got %q", got.MediaKey)
	}
}

func TestDuplicateEndedEventIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))
	if err := f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, "")); err != nil {
		t.Fatalf("first ended: %v", err)
	}
	first, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)

	f.advance(time.Minute)
	if err := f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, "late failure")); err != nil {
		t.Fatalf("duplicate ended: %v", err)
	}
	second, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)

	if second.Status != models.RecordingComplete {
		t.Fatalf("terminal status changed to %s", second.Status)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatal("terminal session mutated by duplicate event")
	}
}

func TestUpdatedEventRefreshesMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))

	ev := models.WebhookEvent{
		EventID:     uuid.NewString(),
		Type:        models.WebhookRecordingUpdated,
		RoomID:      f.room.ID,
		RecordingID: sess.ID,
		DurationMs:  30_000,
		SizeBytes:   512,
	}
	if err := f.orch.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("updated: %v", err)
	}
	got, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.DurationMs != 30_000 || got.SizeBytes != 512 {
		t.Fatalf("metrics = dur %d size %d", got.DurationMs, got.SizeBytes)
	}
	if got.Status != models.RecordingActive {
		t.Fatalf("status changed by updated event: %s", got.Status)
	}
}

func TestEventForUnknownRecordingAcked(t *testing.T) {
	f := newFixture(t)
	if err := f.orch.HandleEvent(context.Background(), endedEvent(f, uuid.New(), "")); err != nil {
		t.Fatalf("event for unknown recording should be acked, got %v", err)
	}
}

func TestAccessSnapshotSurvivesConfigChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))
	f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, ""))

	// Tighten the room config after the fact.
	f.room.Recording.AllowAccessTo = models.AccessAdmin

	got, err := f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessAllowList != models.AccessAdminModeratorSpeaker {
		t.Fatalf("snapshot changed to %q", got.AccessAllowList)
	}
}

func TestDeleteRequiresTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))

	if err := f.orch.Delete(ctx, f.room.ID, sess.ID, caller); !errors.Is(err, ErrNotTerminal) {
		t.Fatalf("delete on active err = %v, want ErrNotTerminal", err)
	}
}

func TestDeleteRemovesMediaAndMeta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))
	putFakeMedia(t, f, sess.ID)
	f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, ""))

	if err := f.orch.Delete(ctx, f.room.ID, sess.ID, caller); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.orch.Get(ctx, f.room.ID, sess.ID, caller); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if f.backend.Len() != 0 {
		t.Fatalf("%d objects remain after delete", f.backend.Len())
	}
	if err := f.orch.Delete(ctx, f.room.ID, sess.ID, caller); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMemberDeleteFlagRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, _ := f.orch.Start(ctx, f.room.ID, adminCaller())
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))
	f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, ""))

	member := &models.RoomMember{
		RoomID:                f.room.ID,
		UserID:                uuid.New(),
		Role:                  models.MemberSpeaker,
		CanRetrieveRecordings: true,
		CanDeleteRecordings:   false,
	}
	caller := policy.Caller{Kind: policy.CallerMember, UserID: member.UserID, Member: member, Authenticated: true}

	if err := f.orch.Delete(ctx, f.room.ID, sess.ID, caller); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete without flag err = %v, want ErrForbidden", err)
	}

	// Flag granted: next call sees it immediately.
	member.CanDeleteRecordings = true
	if err := f.orch.Delete(ctx, f.room.ID, sess.ID, caller); err != nil {
		t.Fatalf("delete with flag: %v", err)
	}
}

func TestListFiltersByCallerTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, admin)
	f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))
	f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, ""))

	speaker := policy.Caller{
		Kind:   policy.CallerSecret,
		Secret: &rooms.Secret{RoomID: f.room.ID, Role: models.MemberSpeaker},
	}
	list, err := f.orch.List(ctx, f.room.ID, speaker)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("speaker sees %d recordings, want 1 (tier admin_moderator_speaker)", len(list))
	}

	// Restrict a second recording's snapshot to admins only.
	sess2, _ := f.orch.Start(ctx, f.room.ID, admin)
	f.orch.HandleEvent(ctx, startedEvent(f, sess2.ID))
	f.orch.HandleEvent(ctx, endedEvent(f, sess2.ID, ""))
	got, _ := f.store.Get(ctx, f.room.ID, sess2.ID)
	got.AccessAllowList = models.AccessAdmin
	f.store.Save(ctx, got)

	list, _ = f.orch.List(ctx, f.room.ID, speaker)
	if len(list) != 1 {
		t.Fatalf("speaker sees %d recordings after restricted addition, want 1", len(list))
	}
	list, _ = f.orch.List(ctx, f.room.ID, admin)
	if len(list) != 2 {
		t.Fatalf("admin sees %d recordings, want 2", len(list))
	}
}

func TestReconcileFailsStuckSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	sess, _ := f.orch.Start(ctx, f.room.ID, caller)
	// No started event ever arrives.
	f.advance(3 * time.Minute)

	n, err := f.orch.ReconcileRoom(ctx, f.room.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 1 {
		t.Fatalf("reconcile failed %d sessions, want 1", n)
	}
	got, _ := f.orch.Get(ctx, f.room.ID, sess.ID, caller)
	if got.Status != models.RecordingFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == "" {
		t.Fatal("failure reason empty")
	}

	// A second sweep finds nothing to do.
	n, err = f.orch.ReconcileRoom(ctx, f.room.ID)
	if err != nil || n != 0 {
		t.Fatalf("second sweep n=%d err=%v, want 0,nil", n, err)
	}
}

func TestReconcileSkipsFreshSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.Start(ctx, f.room.ID, adminCaller())
	f.advance(30 * time.Second)

	n, err := f.orch.ReconcileRoom(ctx, f.room.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh session failed by sweep")
	}
}

func TestConcurrentSweepsFailOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.Start(ctx, f.room.ID, adminCaller())
	f.advance(3 * time.Minute)

	var total atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.orch.ReconcileRoom(ctx, f.room.ID)
			if err != nil {
				t.Errorf("sweep: %v", err)
				return
			}
			total.Add(int32(n))
		}()
	}
	wg.Wait()

	if total.Load() != 1 {
		t.Fatalf("sweeps failed the session %d times, want exactly 1", total.Load())
	}
}

func TestPurgeRoomRemovesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := adminCaller()

	for i := 0; i < 2; i++ {
		sess, err := f.orch.Start(ctx, f.room.ID, caller)
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		f.orch.HandleEvent(ctx, startedEvent(f, sess.ID))
		putFakeMedia(t, f, sess.ID)
		f.orch.HandleEvent(ctx, endedEvent(f, sess.ID, ""))
	}
	// One still in flight.
	if _, err := f.orch.Start(ctx, f.room.ID, caller); err != nil {
		t.Fatalf("start live: %v", err)
	}

	n, err := f.orch.PurgeRoom(ctx, f.room.ID)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("purged %d recordings, want 3", n)
	}
	if f.backend.Len() != 0 {
		t.Fatalf("%d objects remain after purge", f.backend.Len())
	}
}

func TestPublishedPayloadIsSessionJSON(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var payload []byte
	var mu sync.Mutex
	cancel, _ := f.bus.Subscribe(events.RoomTopic(f.room.ID.String()), func(event string, data []byte) {
		mu.Lock()
		if event == events.EventRecordingStarting {
			payload = data
		}
		mu.Unlock()
	})
	defer cancel()

	sess, err := f.orch.Start(ctx, f.room.ID, adminCaller())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var decoded models.RecordingSession
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.ID != sess.ID {
		t.Fatalf("payload id = %s, want %s", decoded.ID, sess.ID)
	}
}
