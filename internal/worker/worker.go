// Package worker consumes purge jobs from the Redis queue: deleting single
// recordings and clearing out everything a removed room left in storage.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/policy"
	"github.com/roomkit/console-backend/internal/recordings"
	"github.com/roomkit/console-backend/pkg/queue"
)

// Purger is the slice of the orchestrator the worker uses.
type Purger interface {
	Delete(ctx context.Context, roomID, recordingID uuid.UUID, caller policy.Caller) error
	PurgeRoom(ctx context.Context, roomID uuid.UUID) (int, error)
}

// Worker processes purge jobs until its context is cancelled.
type Worker struct {
	queue  *queue.Queue
	purger Purger
	logger *zap.Logger
}

func New(q *queue.Queue, purger Purger, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: q, purger: purger, logger: logger}
}

// Run consumes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}
		if err := w.process(ctx, job); err != nil {
			w.logger.Warn("job failed",
				zap.String("job_id", job.ID),
				zap.String("type", string(job.Type)),
				zap.Int("attempt", job.Attempt),
				zap.Error(err))
			if err := w.queue.Retry(ctx, job); err != nil {
				w.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
}

// systemCaller is the credential purge jobs act under.
var systemCaller = policy.Caller{Kind: policy.CallerAPIKey, Authenticated: true}

func (w *Worker) process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordingPurge:
		var p queue.RecordingPurgePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			w.logger.Error("bad recording purge payload", zap.String("job_id", job.ID), zap.Error(err))
			return nil // unparseable, do not retry
		}
		roomID, err := uuid.Parse(p.RoomID)
		if err != nil {
			return nil
		}
		recID, err := uuid.Parse(p.RecordingID)
		if err != nil {
			return nil
		}
		err = w.purger.Delete(ctx, roomID, recID, systemCaller)
		if errors.Is(err, recordings.ErrNotFound) {
			return nil // already gone
		}
		if err == nil {
			w.logger.Info("recording purged",
				zap.String("room_id", p.RoomID), zap.String("recording_id", p.RecordingID))
		}
		return err

	case queue.JobTypeRoomPurge:
		var p queue.RoomPurgePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			w.logger.Error("bad room purge payload", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		roomID, err := uuid.Parse(p.RoomID)
		if err != nil {
			return nil
		}
		n, err := w.purger.PurgeRoom(ctx, roomID)
		if err != nil {
			return err
		}
		w.logger.Info("room purged", zap.String("room_id", p.RoomID), zap.Int("recordings", n))
		return nil

	default:
		w.logger.Warn("unknown job type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		return nil
	}
}
