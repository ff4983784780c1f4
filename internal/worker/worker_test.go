package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/roomkit/console-backend/internal/policy"
	"github.com/roomkit/console-backend/internal/recordings"
	"github.com/roomkit/console-backend/pkg/queue"
)

type fakePurger struct {
	deleted   [][2]uuid.UUID
	purged    []uuid.UUID
	deleteErr error
}

func (f *fakePurger) Delete(_ context.Context, roomID, recordingID uuid.UUID, _ policy.Caller) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, [2]uuid.UUID{roomID, recordingID})
	return nil
}

func (f *fakePurger) PurgeRoom(_ context.Context, roomID uuid.UUID) (int, error) {
	f.purged = append(f.purged, roomID)
	return 1, nil
}

func purgeJob(t *testing.T, typ queue.JobType, payload interface{}) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &queue.Job{ID: uuid.NewString(), Type: typ, Payload: raw}
}

func TestProcessRecordingPurge(t *testing.T) {
	purger := &fakePurger{}
	w := New(nil, purger, nil)
	roomID, recID := uuid.New(), uuid.New()

	job := purgeJob(t, queue.JobTypeRecordingPurge, queue.RecordingPurgePayload{
		RoomID:      roomID.String(),
		RecordingID: recID.String(),
	})
	if err := w.process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(purger.deleted) != 1 || purger.deleted[0] != [2]uuid.UUID{roomID, recID} {
		t.Fatalf("deleted = %v", purger.deleted)
	}
}

func TestProcessRecordingPurgeAlreadyGone(t *testing.T) {
	purger := &fakePurger{deleteErr: recordings.ErrNotFound}
	w := New(nil, purger, nil)

	job := purgeJob(t, queue.JobTypeRecordingPurge, queue.RecordingPurgePayload{
		RoomID:      uuid.NewString(),
		RecordingID: uuid.NewString(),
	})
	// A vanished recording is success, not a retry.
	if err := w.process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
}

func TestProcessRecordingPurgePropagatesFailure(t *testing.T) {
	wantErr := errors.New("storage down")
	purger := &fakePurger{deleteErr: wantErr}
	w := New(nil, purger, nil)

	job := purgeJob(t, queue.JobTypeRecordingPurge, queue.RecordingPurgePayload{
		RoomID:      uuid.NewString(),
		RecordingID: uuid.NewString(),
	})
	if err := w.process(context.Background(), job); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestProcessRoomPurge(t *testing.T) {
	purger := &fakePurger{}
	w := New(nil, purger, nil)
	roomID := uuid.New()

	job := purgeJob(t, queue.JobTypeRoomPurge, queue.RoomPurgePayload{RoomID: roomID.String()})
	if err := w.process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(purger.purged) != 1 || purger.purged[0] != roomID {
		t.Fatalf("purged = %v", purger.purged)
	}
}

func TestProcessSkipsGarbageJobs(t *testing.T) {
	purger := &fakePurger{}
	w := New(nil, purger, nil)

	jobs := []*queue.Job{
		{ID: uuid.NewString(), Type: queue.JobTypeRecordingPurge, Payload: []byte("{")},
		{ID: uuid.NewString(), Type: queue.JobType("compact"), Payload: []byte("{}")},
	}
	for _, job := range jobs {
		if err := w.process(context.Background(), job); err != nil {
			t.Fatalf("job %s: %v", job.Type, err)
		}
	}
	if len(purger.deleted) != 0 || len(purger.purged) != 0 {
		t.Fatal("garbage jobs reached the purger")
	}
}
