package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker in-process with the same lease semantics as
// the Redis implementation. Useful for tests and single-node dev runs.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]memLease
	now     func() time.Time
	posWait time.Duration
}

type memLease struct {
	owner  string
	expiry time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:    make(map[string]memLease),
		now:     time.Now,
		posWait: 5 * time.Millisecond,
	}
}

// SetClock overrides the time source, for lease-expiry tests.
func (l *MemoryLocker) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryLocker) tryAcquire(key, owner string, lease time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[key]
	if ok && cur.expiry.After(l.now()) {
		return false
	}
	l.held[key] = memLease{owner: owner, expiry: l.now().Add(lease)}
	return true
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Handle, error) {
	owner := uuid.New().String()
	deadline := time.Now().Add(wait)
	for {
		if l.tryAcquire(key, owner, lease) {
			return &Handle{Key: key, Owner: owner}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.posWait):
		}
	}
}

func (l *MemoryLocker) Release(ctx context.Context, h *Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[h.Key]
	if !ok || cur.owner != h.Owner || !cur.expiry.After(l.now()) {
		return ErrNotHeld
	}
	delete(l.held, h.Key)
	return nil
}

func (l *MemoryLocker) Renew(ctx context.Context, h *Handle, lease time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[h.Key]
	if !ok || cur.owner != h.Owner || !cur.expiry.After(l.now()) {
		return ErrNotHeld
	}
	l.held[h.Key] = memLease{owner: h.Owner, expiry: l.now().Add(lease)}
	return nil
}
