// Package lock provides cross-process mutual exclusion keyed by string.
//
// Locks carry a lease: if a holder crashes without releasing, the lease
// expires and the key becomes acquirable again. Correctness of the guarded
// critical section therefore holds up to the lease-expiry bound, so leases
// must be kept shorter than any timeout that reassigns authority.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when the lock could not be acquired within the
	// bounded wait. Callers may retry.
	ErrTimeout = errors.New("lock acquisition timed out")
	// ErrNotHeld is returned on release/renew when the caller no longer owns
	// the lock (lease expired and someone else took it, or double release).
	ErrNotHeld = errors.New("lock not held")
)

// Handle identifies one acquisition of a lock. The owner token prevents a
// process from releasing a lock whose lease it already lost.
type Handle struct {
	Key   string
	Owner string
}

// Locker is a distributed mutual-exclusion primitive.
type Locker interface {
	// Acquire blocks up to wait for the lock, then fails with ErrTimeout.
	// The returned handle's lease expires after lease unless renewed.
	Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Handle, error)
	// Release frees the lock if the handle still owns it.
	Release(ctx context.Context, h *Handle) error
	// Renew extends the lease if the handle still owns the lock.
	Renew(ctx context.Context, h *Handle, lease time.Duration) error
}
