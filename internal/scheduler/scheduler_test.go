package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roomkit/console-backend/internal/models"
)

type fakeReconciler struct {
	calls map[uuid.UUID]int
	fail  map[uuid.UUID]bool
}

func (f *fakeReconciler) ReconcileRoom(_ context.Context, roomID uuid.UUID) (int, error) {
	if f.calls == nil {
		f.calls = make(map[uuid.UUID]int)
	}
	f.calls[roomID]++
	if f.fail[roomID] {
		return 0, errors.New("lock timeout")
	}
	return 1, nil
}

type fakeRoomSource struct {
	ids     []uuid.UUID
	expired []models.Room
	deleted []uuid.UUID
}

func (f *fakeRoomSource) ListIDs(_ context.Context) ([]uuid.UUID, error) { return f.ids, nil }

func (f *fakeRoomSource) ListExpired(_ context.Context, _ time.Time) ([]models.Room, error) {
	return f.expired, nil
}

func (f *fakeRoomSource) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	remaining := f.expired[:0]
	for _, r := range f.expired {
		if r.ID != id {
			remaining = append(remaining, r)
		}
	}
	f.expired = remaining
	return nil
}

func TestSweepReconcilesEveryRoom(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rec := &fakeReconciler{}
	src := &fakeRoomSource{ids: ids}
	s := New(src, rec, nil, time.Minute, nil)

	s.reconcile(context.Background())

	for _, id := range ids {
		if rec.calls[id] != 1 {
			t.Fatalf("room %s reconciled %d times, want 1", id, rec.calls[id])
		}
	}
}

func TestSweepContinuesPastRoomFailure(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rec := &fakeReconciler{fail: map[uuid.UUID]bool{ids[1]: true}}
	src := &fakeRoomSource{ids: ids}
	s := New(src, rec, nil, time.Minute, nil)

	s.reconcile(context.Background())

	if rec.calls[ids[2]] != 1 {
		t.Fatal("sweep stopped at failing room")
	}
}
