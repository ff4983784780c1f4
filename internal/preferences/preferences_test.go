package preferences

import (
	"context"
	"testing"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/pkg/storage"
)

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), storage.S3Keys{})

	p, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *p != Defaults {
		t.Fatalf("got %+v, want defaults %+v", *p, Defaults)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), storage.CompatKeys{})
	ctx := context.Background()

	want := &Preferences{
		DefaultRecordingEnabled: true,
		DefaultRecordingAccess:  models.AccessAdminModeratorSpeaker,
		RoomRetentionDays:       30,
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != *want {
		t.Fatalf("got %+v, want %+v", *got, *want)
	}

	enabled, access, days := s.RoomDefaults(ctx)
	if !enabled || access != models.AccessAdminModeratorSpeaker || days != 30 {
		t.Fatalf("room defaults = %v %s %d", enabled, access, days)
	}
}
