package services

import (
	"context"
	"encoding/json"
	"time"

	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder turns history entries, notifications and saga steps into outbox rows.
// The outbox id becomes the id of the drained row, so redelivery cannot duplicate it.
// Write failures are logged and swallowed: they never undo the primary mutation.
type Recorder struct {
	Outbox OutboxWriter
	Kicker Kicker
	Now    func() time.Time
}

func (r Recorder) History(ctx context.Context, h models.HistoryEntry) {
	id := uuid.NewString()
	h.ID = id
	if h.CreatedAt.IsZero() {
		h.CreatedAt = clock(r.Now)
	}
	r.enqueue(ctx, id, models.OutboxHistory, h.BookingID, h)
}

func (r Recorder) Notify(ctx context.Context, bookingID string, n models.Notification) {
	id := uuid.NewString()
	n.ID = id
	if n.CreatedAt.IsZero() {
		n.CreatedAt = clock(r.Now)
	}
	r.enqueue(ctx, id, models.OutboxNotification, bookingID, n)
}

// Promotion hands a failed booking promotion to the worker.
func (r Recorder) Promotion(ctx context.Context, p models.PromotionPayload) {
	r.enqueue(ctx, uuid.NewString(), models.OutboxBookingPromotion, p.BookingID, p)
}

func (r Recorder) enqueue(ctx context.Context, id string, kind models.OutboxKind, bookingID string, payload any) {
	if r.Outbox == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		utils.LogWarn(ctx, "outbox", string(kind), "encode payload failed", err, zap.String("booking_id", bookingID))
		return
	}
	now := clock(r.Now)
	ev := models.OutboxEvent{
		ID:            id,
		Kind:          kind,
		BookingID:     bookingID,
		Payload:       raw,
		Status:        models.OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := r.Outbox.Enqueue(ctx, ev); err != nil {
		utils.LogWarn(ctx, "outbox", string(kind), "enqueue failed", err,
			zap.String("booking_id", bookingID), zap.String("event_id", id))
		return
	}
	if r.Kicker != nil {
		r.Kicker.Kick(ctx)
	}
}
