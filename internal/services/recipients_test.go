package services

import (
	"testing"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

func TestResolveRecipients(t *testing.T) {
	b := models.Booking{ID: "B1", DriverID: "drv-1", PartnerID: "ptn-1"}
	staff := []models.StaffMember{
		{ID: "stf-1", PartnerID: "ptn-1", FinancialVisibility: true},
		{ID: "stf-2", PartnerID: "ptn-1", FinancialVisibility: false},
		{ID: "stf-3", PartnerID: "ptn-2", FinancialVisibility: true},
		{ID: "stf-1", PartnerID: "ptn-1", FinancialVisibility: true},
	}
	cases := []struct {
		event string
		actor domain.Actor
		want  []string
	}{
		{models.NotifyNewBooking, driver, []string{"ptn-1", "stf-1"}},
		{models.NotifyPaymentSent, driver, []string{"ptn-1", "stf-1"}},
		{models.NotifyPaymentInstructions, partner, []string{"drv-1"}},
		{models.NotifyVehicleReleased, driver, []string{"drv-1", "ptn-1", "ops"}},
		{models.NotifyBookingCancelled, driver, []string{"ptn-1", "ops"}},
		{models.NotifyBookingCancelled, operator, []string{"drv-1", "ptn-1", "ops"}},
		{models.NotifyIssueReported, partner, []string{"drv-1", "ops"}},
		{models.NotifyIssueResolved, partner, []string{"drv-1"}},
		{models.NotifyCriticalIssueAlert, driver, []string{"ops"}},
		{"unknown_event", driver, nil},
	}
	for _, tc := range cases {
		got := ResolveRecipients(tc.event, b, tc.actor, staff, "ops")
		ids := []string{}
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		if len(ids) != len(tc.want) {
			t.Fatalf("%s by %s: got %v, want %v", tc.event, tc.actor.ID, ids, tc.want)
		}
		for i := range ids {
			if ids[i] != tc.want[i] {
				t.Fatalf("%s by %s: got %v, want %v", tc.event, tc.actor.ID, ids, tc.want)
			}
		}
	}
}

func TestNeedsStaff(t *testing.T) {
	if !NeedsStaff(models.NotifyNewBooking) || !NeedsStaff(models.NotifyPaymentSent) {
		t.Fatalf("payment events should reach staff")
	}
	if NeedsStaff(models.NotifyBookingActivated) {
		t.Fatalf("activation should not load the staff roster")
	}
}
