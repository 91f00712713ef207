package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentals/internal/domain/models"
	"rentals/internal/events"
	"rentals/internal/utils"

	"go.uber.org/zap"
)

type OutboxStore interface {
	Lease(ctx context.Context, owner string, limit int, now time.Time, ttl time.Duration) ([]models.OutboxEvent, error)
	MarkDone(ctx context.Context, id, owner string, at time.Time) error
	MarkRetry(ctx context.Context, id, owner string, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id, owner string, at time.Time, lastErr string) error
}

type HistoryWriter interface {
	Append(ctx context.Context, h models.HistoryEntry) error
}

type NotificationWriter interface {
	Create(ctx context.Context, n models.Notification) error
}

// Promoter retries the booking promotion step of a markSent that could not finish inline.
type Promoter interface {
	PromoteBooking(ctx context.Context, p models.PromotionPayload) error
}

type Publisher interface {
	Publish(ctx context.Context, m events.Message) error
}

const (
	defaultBatchSize   = 50
	defaultLeaseTTL    = 30 * time.Second
	defaultMaxAttempts = 8
	defaultRetryBase   = 5 * time.Second
	defaultRetryMax    = 10 * time.Minute
)

// Drainer applies leased outbox events. Every handler is idempotent, so an event
// replayed after a lost lease produces no duplicate rows.
type Drainer struct {
	Store         OutboxStore
	History       HistoryWriter
	Notifications NotificationWriter
	Promoter      Promoter
	Publisher     Publisher

	Owner       string
	BatchSize   int
	LeaseTTL    time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	Now         func() time.Time
}

type DrainStats struct {
	Leased  int `json:"leased"`
	Done    int `json:"done"`
	Retried int `json:"retried"`
	Dead    int `json:"dead"`
}

// Drain leases one batch and processes it. Per-event failures are recorded on the row, not returned.
func (d Drainer) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats
	batch, err := d.Store.Lease(ctx, d.owner(), d.batchSize(), d.now(), d.leaseTTL())
	if err != nil {
		return stats, fmt.Errorf("lease outbox batch: %w", err)
	}
	stats.Leased = len(batch)

	for _, ev := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		err := d.dispatch(ctx, ev)
		switch {
		case err == nil:
			if markErr := d.Store.MarkDone(ctx, ev.ID, d.owner(), d.now()); markErr != nil {
				utils.LogWarn(ctx, "outbox", "done", "could not mark event done", markErr, zap.String("event_id", ev.ID))
				continue
			}
			stats.Done++
		case ev.AttemptCount+1 >= d.maxAttempts():
			utils.LogWarn(ctx, "outbox", string(ev.Kind), "event dead after max attempts", err,
				zap.String("event_id", ev.ID), zap.String("booking_id", ev.BookingID), zap.Int("attempts", ev.AttemptCount+1))
			if markErr := d.Store.MarkDead(ctx, ev.ID, d.owner(), d.now(), err.Error()); markErr != nil {
				utils.LogWarn(ctx, "outbox", "dead", "could not mark event dead", markErr, zap.String("event_id", ev.ID))
				continue
			}
			stats.Dead++
		default:
			next := d.now().Add(d.backoff(ev.AttemptCount))
			utils.LogWarn(ctx, "outbox", string(ev.Kind), "event failed, retry scheduled", err,
				zap.String("event_id", ev.ID), zap.Time("next_attempt_at", next))
			if markErr := d.Store.MarkRetry(ctx, ev.ID, d.owner(), next, err.Error()); markErr != nil {
				utils.LogWarn(ctx, "outbox", "retry", "could not schedule retry", markErr, zap.String("event_id", ev.ID))
				continue
			}
			stats.Retried++
		}
	}
	if stats.Leased > 0 {
		utils.LogEvent(ctx, "outbox", "drain", "batch processed",
			zap.Int("leased", stats.Leased), zap.Int("done", stats.Done), zap.Int("retried", stats.Retried), zap.Int("dead", stats.Dead))
	}
	return stats, nil
}

func (d Drainer) dispatch(ctx context.Context, ev models.OutboxEvent) error {
	switch ev.Kind {
	case models.OutboxHistory:
		var h models.HistoryEntry
		if err := json.Unmarshal(ev.Payload, &h); err != nil {
			return fmt.Errorf("decode history payload: %w", err)
		}
		h.ID = ev.ID
		if err := d.History.Append(ctx, h); err != nil {
			return err
		}
		if d.Publisher == nil {
			return nil
		}
		return d.Publisher.Publish(ctx, events.Message{ID: ev.ID, RoutingKey: events.RoutingKey(h.Action), Body: h})
	case models.OutboxNotification:
		var n models.Notification
		if err := json.Unmarshal(ev.Payload, &n); err != nil {
			return fmt.Errorf("decode notification payload: %w", err)
		}
		n.ID = ev.ID
		return d.Notifications.Create(ctx, n)
	case models.OutboxBookingPromotion:
		var p models.PromotionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode promotion payload: %w", err)
		}
		return d.Promoter.PromoteBooking(ctx, p)
	default:
		return fmt.Errorf("unknown outbox kind %q", ev.Kind)
	}
}

// backoff doubles from RetryBase per prior attempt, capped at RetryMax.
func (d Drainer) backoff(attempts int) time.Duration {
	base, ceiling := d.RetryBase, d.RetryMax
	if base <= 0 {
		base = defaultRetryBase
	}
	if ceiling <= 0 {
		ceiling = defaultRetryMax
	}
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

func (d Drainer) owner() string {
	if d.Owner != "" {
		return d.Owner
	}
	return "outbox-worker"
}

func (d Drainer) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return defaultBatchSize
}

func (d Drainer) leaseTTL() time.Duration {
	if d.LeaseTTL > 0 {
		return d.LeaseTTL
	}
	return defaultLeaseTTL
}

func (d Drainer) maxAttempts() int {
	if d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return defaultMaxAttempts
}

func (d Drainer) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return utils.NowUTC()
}
