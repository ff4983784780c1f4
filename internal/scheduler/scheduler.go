// Package scheduler runs the periodic maintenance loops: the reconciliation
// sweep that settles stuck recordings, and the expiry sweep that queues
// cleanup for rooms past their auto-deletion date. Several instances may run
// the loops concurrently; the per-room lock keeps the work single-writer.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/models"
	"github.com/roomkit/console-backend/pkg/queue"
)

// Reconciler settles stuck sessions for one room.
type Reconciler interface {
	ReconcileRoom(ctx context.Context, roomID uuid.UUID) (int, error)
}

// RoomSource lists rooms for the sweeps.
type RoomSource interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Room, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Scheduler drives the periodic sweeps.
type Scheduler struct {
	rooms      RoomSource
	reconciler Reconciler
	jobs       *queue.Queue
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func New(rooms RoomSource, reconciler Reconciler, jobs *queue.Queue, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		rooms:      rooms,
		reconciler: reconciler,
		jobs:       jobs,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run executes sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass plus one expiry pass.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.reconcile(ctx)
	s.expireRooms(ctx)
}

func (s *Scheduler) reconcile(ctx context.Context) {
	ids, err := s.rooms.ListIDs(ctx)
	if err != nil {
		s.logger.Error("reconcile sweep: list rooms", zap.Error(err))
		return
	}
	total := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		n, err := s.reconciler.ReconcileRoom(ctx, id)
		if err != nil {
			// Lock contention or storage trouble for one room should not stop
			// the sweep; the next tick retries.
			s.logger.Warn("reconcile room failed", zap.String("room_id", id.String()), zap.Error(err))
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("reconcile sweep settled stuck recordings", zap.Int("count", total))
	}
}

func (s *Scheduler) expireRooms(ctx context.Context) {
	expired, err := s.rooms.ListExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("expiry sweep: list rooms", zap.Error(err))
		return
	}
	for i := range expired {
		room := &expired[i]
		if err := s.jobs.EnqueueRoomPurge(ctx, queue.RoomPurgePayload{RoomID: room.ID.String()}); err != nil {
			// Keep the row so the next sweep retries the enqueue.
			s.logger.Error("expiry sweep: enqueue purge", zap.String("room_id", room.ID.String()), zap.Error(err))
			continue
		}
		if err := s.rooms.Delete(ctx, room.ID); err != nil {
			s.logger.Error("expiry sweep: delete room", zap.String("room_id", room.ID.String()), zap.Error(err))
			continue
		}
		s.logger.Info("expired room queued for purge",
			zap.String("room_id", room.ID.String()),
			zap.Timep("auto_deletion_at", room.AutoDeletionAt))
	}
}
