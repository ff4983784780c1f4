package events

import (
	"context"
	"testing"
)

func TestMemoryBusDelivers(t *testing.T) {
	b := NewMemoryBus()
	got := make(chan string, 1)
	cancel, err := b.Subscribe(RoomTopic("r1"), func(event string, payload []byte) {
		got <- event + ":" + string(payload)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := b.Publish(context.Background(), RoomTopic("r1"), EventRecordingActive, []byte(`{"id":"rec1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := <-got; msg != `recording_active:{"id":"rec1"}` {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestMemoryBusTopicIsolationAndCancel(t *testing.T) {
	b := NewMemoryBus()
	var r1, r2 int
	cancel1, _ := b.Subscribe(RoomTopic("r1"), func(string, []byte) { r1++ })
	cancel2, _ := b.Subscribe(RoomTopic("r2"), func(string, []byte) { r2++ })
	defer cancel2()

	ctx := context.Background()
	_ = b.Publish(ctx, RoomTopic("r1"), EventRecordingComplete, nil)
	if r1 != 1 || r2 != 0 {
		t.Fatalf("topic isolation broken: r1=%d r2=%d", r1, r2)
	}

	cancel1()
	_ = b.Publish(ctx, RoomTopic("r1"), EventRecordingComplete, nil)
	if r1 != 1 {
		t.Fatalf("handler called after cancel: r1=%d", r1)
	}
}
