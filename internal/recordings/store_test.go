package recordings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/pkg/storage"
)

func TestListByRoomNewestFirst(t *testing.T) {
	store := NewSessionStore(storage.NewMemoryBackend(), storage.S3Keys{}, 1, nil)
	ctx := context.Background()
	roomID := uuid.New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Saved out of order; UUID keys don't sort chronologically either.
	offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
	for _, off := range offsets {
		sess := &models.RecordingSession{
			ID:        uuid.New(),
			RoomID:    roomID,
			Status:    models.RecordingComplete,
			StartedAt: base.Add(off),
			UpdatedAt: base.Add(off),
		}
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	list, err := store.ListByRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d sessions, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].StartedAt.After(list[i-1].StartedAt) {
			t.Fatalf("sessions not newest first: %v before %v",
				list[i-1].StartedAt, list[i].StartedAt)
		}
	}
}
