package services

import (
	"context"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"go.uber.org/zap"
)

const defaultOperatorChannel = "platform_operators"

// Message is the content of one event; Fanout stamps it per recipient.
type Message struct {
	Type     string
	Title    string
	Body     string
	Data     map[string]any
	Priority models.Priority
	// RoleBody and RolePriority override Body/Priority for a given role.
	RoleBody     map[Role]string
	RolePriority map[Role]models.Priority
}

// Fanout emits one notification per resolved recipient through the Recorder.
type Fanout struct {
	Recorder        Recorder
	Directory       PartnerDirectory
	OperatorChannel string
}

// Emit returns the recipients it queued notifications for.
func (f Fanout) Emit(ctx context.Context, b models.Booking, actor domain.Actor, msg Message) []Recipient {
	var staff []models.StaffMember
	if NeedsStaff(msg.Type) && f.Directory != nil {
		list, err := f.Directory.FinanceStaff(ctx, b.PartnerID)
		if err != nil {
			utils.LogWarn(ctx, "fanout", msg.Type, "staff roster unavailable, notifying partner only", err,
				zap.String("booking_id", b.ID))
		}
		staff = list
	}

	channel := f.OperatorChannel
	if channel == "" {
		channel = defaultOperatorChannel
	}
	recipients := ResolveRecipients(msg.Type, b, actor, staff, channel)
	for _, r := range recipients {
		n := models.Notification{
			RecipientID:   r.ID,
			RecipientType: r.Type,
			Type:          msg.Type,
			Title:         msg.Title,
			Message:       msg.Body,
			Data:          withBookingID(msg.Data, b.ID),
			Priority:      msg.Priority,
		}
		if body, ok := msg.RoleBody[r.Role]; ok {
			n.Message = body
		}
		if p, ok := msg.RolePriority[r.Role]; ok {
			n.Priority = p
		}
		if n.Priority == "" {
			n.Priority = models.PriorityNormal
		}
		f.Recorder.Notify(ctx, b.ID, n)
	}
	return recipients
}

func withBookingID(data map[string]any, bookingID string) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["booking_id"] = bookingID
	return out
}
