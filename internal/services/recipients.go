package services

import (
	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

// Role is the relationship of a recipient to the booking.
type Role string

const (
	RoleDriver   Role = "driver"
	RolePartner  Role = "partner"
	RoleStaff    Role = "staff"
	RoleOperator Role = "operator"
)

type Recipient struct {
	ID   string
	Type string
	Role Role
}

type audience struct {
	roles     []Role
	skipActor bool
}

// audiences is keyed by notification type.
var audiences = map[string]audience{
	models.NotifyPaymentInstructions: {roles: []Role{RoleDriver}},
	models.NotifyNewPaymentChannel:   {roles: []Role{RolePartner}},
	models.NotifyNewBooking:          {roles: []Role{RolePartner, RoleStaff}},
	models.NotifyPaymentSent:         {roles: []Role{RolePartner, RoleStaff}},
	models.NotifyPaymentConfirmed:    {roles: []Role{RoleDriver}},
	models.NotifyDepositRefunded:     {roles: []Role{RoleDriver}},
	models.NotifyRefundRejected:      {roles: []Role{RoleDriver}},
	models.NotifyBookingAccepted:     {roles: []Role{RoleDriver}},
	models.NotifyBookingActivated:    {roles: []Role{RoleDriver, RoleOperator}},
	models.NotifyBookingCompleted:    {roles: []Role{RoleDriver, RolePartner, RoleOperator}, skipActor: true},
	models.NotifyBookingCancelled:    {roles: []Role{RoleDriver, RolePartner, RoleOperator}, skipActor: true},
	models.NotifyVehicleReleased:     {roles: []Role{RoleDriver, RolePartner, RoleOperator}},
	models.NotifyIssueReported:       {roles: []Role{RolePartner, RoleDriver, RoleOperator}, skipActor: true},
	models.NotifyIssueResolved:       {roles: []Role{RoleDriver, RolePartner}, skipActor: true},
	models.NotifyCriticalIssueAlert:  {roles: []Role{RoleOperator}},
}

// NeedsStaff reports whether the event reaches partner staff, so callers only load the roster when needed.
func NeedsStaff(event string) bool {
	for _, r := range audiences[event].roles {
		if r == RoleStaff {
			return true
		}
	}
	return false
}

// ResolveRecipients derives the recipient set of an event. It has no side effects.
// Staff without financial visibility are ignored. The operator channel is never skipped.
func ResolveRecipients(event string, b models.Booking, actor domain.Actor, staff []models.StaffMember, operatorChannel string) []Recipient {
	aud, ok := audiences[event]
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	out := []Recipient{}
	add := func(r Recipient) {
		if r.ID == "" {
			return
		}
		key := r.Type + ":" + r.ID
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, r)
	}

	for _, role := range aud.roles {
		switch role {
		case RoleDriver:
			if aud.skipActor && actor.ID == b.DriverID {
				continue
			}
			add(Recipient{ID: b.DriverID, Type: string(domain.ActorDriver), Role: RoleDriver})
		case RolePartner:
			if aud.skipActor && actor.ID == b.PartnerID {
				continue
			}
			add(Recipient{ID: b.PartnerID, Type: string(domain.ActorPartner), Role: RolePartner})
		case RoleStaff:
			for _, s := range staff {
				if !s.FinancialVisibility || s.PartnerID != b.PartnerID {
					continue
				}
				add(Recipient{ID: s.ID, Type: string(domain.ActorPartnerStaff), Role: RoleStaff})
			}
		case RoleOperator:
			add(Recipient{ID: operatorChannel, Type: string(domain.ActorOperator), Role: RoleOperator})
		}
	}
	return out
}
