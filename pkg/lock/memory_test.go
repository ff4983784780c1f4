package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var inCritical int32
	var violations int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.Acquire(ctx, "recording-lock:r1", time.Second, 2*time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if atomic.AddInt32(&inCritical, 1) > 1 {
				atomic.AddInt32(&violations, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inCritical, -1)
			if err := l.Release(ctx, h); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()
	if violations != 0 {
		t.Fatalf("%d goroutines overlapped in the critical section", violations)
	}
}

func TestMemoryLockerBoundedWait(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	h, err := l.Acquire(ctx, "recording-lock:r1", time.Minute, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release(ctx, h)

	start := time.Now()
	_, err = l.Acquire(ctx, "recording-lock:r1", time.Minute, 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait not bounded: %s", elapsed)
	}
}

func TestMemoryLockerLeaseExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	now := time.Now()
	l.SetClock(func() time.Time { return now })

	h1, err := l.Acquire(ctx, "recording-lock:r1", 10*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Holder crashes; lease expires.
	now = now.Add(11 * time.Second)

	h2, err := l.Acquire(ctx, "recording-lock:r1", 10*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}

	// The stale handle must not be able to release the new holder's lock.
	if err := l.Release(ctx, h1); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("stale release: expected ErrNotHeld, got %v", err)
	}
	if err := l.Release(ctx, h2); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestMemoryLockerRenew(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	now := time.Now()
	l.SetClock(func() time.Time { return now })

	h, err := l.Acquire(ctx, "recording-lock:r1", 10*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(8 * time.Second)
	if err := l.Renew(ctx, h, 10*time.Second); err != nil {
		t.Fatalf("renew: %v", err)
	}
	now = now.Add(8 * time.Second)
	// 16s after acquire but only 8s after renew: still held.
	if err := l.Release(ctx, h); err != nil {
		t.Fatalf("release after renew: %v", err)
	}
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "recording-lock:r1", time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire r1: %v", err)
	}
	h2, err := l.Acquire(ctx, "recording-lock:r2", time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("locks must be independent per key: %v", err)
	}
	_ = l.Release(ctx, h1)
	_ = l.Release(ctx, h2)
}
