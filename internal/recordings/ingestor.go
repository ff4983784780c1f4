package recordings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/internal/media"
	"github.com/roomkit/console-backend/internal/models"
)

// Deduper remembers recently seen event IDs across processes.
type Deduper interface {
	// Seen marks id as processed and reports whether it already was.
	Seen(ctx context.Context, id string) (bool, error)
	// Forget releases a claim from Seen so a redelivery is processed again.
	Forget(ctx context.Context, id string) error
}

// RedisDeduper dedupes via SET NX with a TTL window shared by all instances.
type RedisDeduper struct {
	client *redislib.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redislib.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	set, err := d.client.SetNX(ctx, "webhook:seen:"+id, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return !set, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, "webhook:seen:"+id).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// MemoryDeduper is a single-process Deduper for tests.
type MemoryDeduper struct {
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	if _, ok := d.seen[id]; ok {
		return true, nil
	}
	d.seen[id] = struct{}{}
	return false, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

// EventSink consumes normalized webhook events.
type EventSink interface {
	HandleEvent(ctx context.Context, ev models.WebhookEvent) error
}

// providerEvent is the media server's webhook wire format.
type providerEvent struct {
	ID          string `json:"id"`
	Event       string `json:"event"`
	RoomID      string `json:"room_id"`
	RecordingID string `json:"recording_id"`
	DurationMs  int64  `json:"duration_ms"`
	SizeBytes   int64  `json:"size_bytes"`
	Error       string `json:"error"`
}

// providerEventNames maps the media server's event names onto the internal
// vocabulary.
var providerEventNames = map[string]models.WebhookEventType{
	"meeting.started":   models.WebhookMeetingStarted,
	"meeting.ended":     models.WebhookMeetingEnded,
	"recording.started": models.WebhookRecordingStarted,
	"recording.updated": models.WebhookRecordingUpdated,
	"recording.ended":   models.WebhookRecordingEnded,
}

// Ingestor authenticates, dedupes and normalizes raw webhook deliveries
// before handing them to the state machine.
type Ingestor struct {
	secret string
	dedup  Deduper
	sink   EventSink
	logger *zap.Logger
}

func NewIngestor(secret string, dedup Deduper, sink EventSink, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{secret: secret, dedup: dedup, sink: sink, logger: logger}
}

// Handle processes one raw delivery. ErrInvalidSignature means the delivery
// must be rejected; any other error is retryable by the sender. Unknown event
// types and duplicates are acknowledged without effect.
func (i *Ingestor) Handle(ctx context.Context, body []byte, signature string) error {
	if !media.VerifySignature(body, signature, i.secret) {
		return ErrInvalidSignature
	}

	var raw providerEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("decode webhook body: %w", err)
	}

	// Deliveries without an id can't be deduped; the state machine tolerates
	// duplicates, so process them rather than collapsing them onto one key.
	if raw.ID != "" {
		dup, err := i.dedup.Seen(ctx, raw.ID)
		if err != nil {
			return err
		}
		if dup {
			i.logger.Debug("duplicate webhook delivery", zap.String("event_id", raw.ID))
			return nil
		}
	} else {
		i.logger.Warn("webhook delivery without id", zap.String("event", raw.Event))
	}

	if err := i.process(ctx, raw); err != nil {
		// The sender retries failed deliveries; release the dedup claim so
		// the redelivery isn't dropped as a duplicate.
		if raw.ID != "" {
			if ferr := i.dedup.Forget(ctx, raw.ID); ferr != nil {
				i.logger.Error("dedup release failed",
					zap.String("event_id", raw.ID), zap.Error(ferr))
			}
		}
		return err
	}
	return nil
}

func (i *Ingestor) process(ctx context.Context, raw providerEvent) error {
	typ, ok := providerEventNames[raw.Event]
	if !ok {
		i.logger.Warn("unknown webhook event", zap.String("event", raw.Event), zap.String("event_id", raw.ID))
		return nil
	}

	ev := models.WebhookEvent{
		EventID:    raw.ID,
		Type:       typ,
		DurationMs: raw.DurationMs,
		SizeBytes:  raw.SizeBytes,
		Failure:    raw.Error,
	}
	var err error
	if ev.RoomID, err = uuid.Parse(raw.RoomID); err != nil {
		return fmt.Errorf("webhook room id: %w", err)
	}
	if raw.RecordingID != "" {
		if ev.RecordingID, err = uuid.Parse(raw.RecordingID); err != nil {
			return fmt.Errorf("webhook recording id: %w", err)
		}
	}
	return i.sink.HandleEvent(ctx, ev)
}
