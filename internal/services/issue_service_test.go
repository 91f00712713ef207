package services

import (
	"context"
	"testing"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

func TestCriticalIssueForcesMaintenance(t *testing.T) {
	h := newHarness(t)
	h.addBooking("B1", models.BookingActive, "V1")
	h.addVehicle("V1", "B1")

	res, err := h.issueSvc.ReportIssue(context.Background(), ReportIssueInput{
		BookingID: "B1", Type: models.IssueMechanical, Severity: models.SeverityCritical,
		Description: "Brakes failing", Images: []string{" a.jpg ", ""}, Actor: driver,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !res.VehicleFlagged || res.Issue.Status != models.IssueOpen || len(res.Issue.Images) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	v := h.vehicles.get(t, "V1")
	if v.Status != models.VehicleMaintenanceRequired || v.CurrentBookingID != "B1" {
		t.Fatalf("vehicle = %+v", v)
	}
	if b := h.bookings.get(t, "B1"); b.Status != models.BookingActive || b.VehicleID != "V1" {
		t.Fatalf("booking changed: %+v", b)
	}
	if len(h.outbox.histories(t, models.ActionVehicleMaintenance)) != 1 {
		t.Fatalf("expected maintenance history entry")
	}

	if n := h.outbox.notificationsFor(t, models.NotifyIssueReported, partner.ID); len(n) != 1 || n[0].Priority != models.PriorityHigh {
		t.Fatalf("partner issue notice = %+v", n)
	}
	if n := h.outbox.notificationsFor(t, models.NotifyIssueReported, driver.ID); len(n) != 0 {
		t.Fatalf("reporter was notified of their own issue")
	}
	if n := h.outbox.notificationsFor(t, models.NotifyCriticalIssueAlert, "platform_operators"); len(n) != 1 {
		t.Fatalf("expected critical alert for operators, got %d", len(n))
	}
}

func TestCriticalIssueLeavesVehicleHeldByAnotherBooking(t *testing.T) {
	h := newHarness(t)
	h.addBooking("B1", models.BookingActive, "V1")
	h.addBooking("B2", models.BookingPendingPayment, "V1")
	h.addVehicle("V1", "B1")

	res, err := h.issueSvc.ReportIssue(context.Background(), ReportIssueInput{
		BookingID: "B2", Type: models.IssueDamage, Severity: models.SeverityCritical,
		Description: "Cracked windscreen in listing photos", Actor: driver,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.VehicleFlagged {
		t.Fatalf("vehicle flagged for a booking that does not hold it")
	}
	if v := h.vehicles.get(t, "V1"); v.Status != models.VehicleBooked || v.CurrentBookingID != "B1" {
		t.Fatalf("vehicle = %+v", v)
	}
	if len(h.outbox.histories(t, models.ActionVehicleMaintenance)) != 0 {
		t.Fatalf("unexpected maintenance history entry")
	}
	if n := h.outbox.notificationsFor(t, models.NotifyCriticalIssueAlert, "platform_operators"); len(n) != 1 || n[0].Data["vehicle_flagged"] != false {
		t.Fatalf("critical alert = %+v", n)
	}
}

func TestIssueReportedInAnyStatus(t *testing.T) {
	for _, status := range domain.AllStatuses {
		h := newHarness(t)
		h.addBooking("B1", status, "")

		res, err := h.issueSvc.ReportIssue(context.Background(), ReportIssueInput{
			BookingID: "B1", Type: models.IssueCleanliness, Severity: models.SeverityMedium,
			Description: "Seats dirty", Actor: partner,
		})
		if err != nil {
			t.Fatalf("%s: report: %v", status, err)
		}
		if res.VehicleFlagged {
			t.Fatalf("%s: non-critical issue flagged vehicle", status)
		}
		if got := h.bookings.get(t, "B1").Status; got != status {
			t.Fatalf("%s: status changed to %s", status, got)
		}
		if n := h.outbox.notificationsFor(t, models.NotifyIssueReported, driver.ID); len(n) != 1 || n[0].Priority != models.PriorityNormal {
			t.Fatalf("%s: driver notice = %+v", status, n)
		}
		if n := h.outbox.notificationsFor(t, models.NotifyIssueReported, partner.ID); len(n) != 0 {
			t.Fatalf("%s: reporting partner was notified", status)
		}
	}
}

func TestReportIssueValidation(t *testing.T) {
	h := newHarness(t)
	h.addBooking("B1", models.BookingActive, "")

	cases := []ReportIssueInput{
		{BookingID: "B1", Type: "flat", Severity: models.SeverityLow, Description: "x", Actor: driver},
		{BookingID: "B1", Type: models.IssueDamage, Severity: "urgent", Description: "x", Actor: driver},
		{BookingID: "B1", Type: models.IssueDamage, Severity: models.SeverityLow, Description: " ", Actor: driver},
	}
	for _, in := range cases {
		if _, err := h.issueSvc.ReportIssue(context.Background(), in); !domain.IsValidation(err) {
			t.Fatalf("%+v: expected validation error, got %v", in, err)
		}
	}
	_, err := h.issueSvc.ReportIssue(context.Background(), ReportIssueInput{
		BookingID: "B1", Type: models.IssueDamage, Severity: models.SeverityLow, Description: "scratch", Actor: stranger,
	})
	if !domain.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(h.issues.rows) != 0 {
		t.Fatalf("rejected reports were stored")
	}
}

func TestResolveIssue(t *testing.T) {
	h := newHarness(t)
	h.addBooking("B1", models.BookingActive, "")
	h.issues.rows = []models.Issue{{ID: "X1", BookingID: "B1", Type: models.IssueDamage, Status: models.IssueOpen}}

	if _, err := h.issueSvc.ResolveIssue(context.Background(), "B1", "X1", "fixed", driver); !domain.IsUnauthorized(err) {
		t.Fatalf("driver resolve should be unauthorized, got %v", err)
	}
	is, err := h.issueSvc.ResolveIssue(context.Background(), "B1", "X1", "Panel replaced", partner)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if is.Status != models.IssueResolved || *is.Resolution != "Panel replaced" || *is.ResolvedBy != partner.ID {
		t.Fatalf("issue = %+v", is)
	}
	if n := h.outbox.notificationsFor(t, models.NotifyIssueResolved, driver.ID); len(n) != 1 {
		t.Fatalf("driver not told of resolution")
	}
	if _, err := h.issueSvc.ResolveIssue(context.Background(), "B1", "X1", "again", partner); !domain.IsAlreadyTerminal(err) {
		t.Fatalf("expected already terminal, got %v", err)
	}
	if _, err := h.issueSvc.ResolveIssue(context.Background(), "B1", "nope", "x", partner); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
