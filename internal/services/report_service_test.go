package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

type memHistory struct {
	rows []models.HistoryEntry
}

func (m memHistory) ListByBooking(_ context.Context, bookingID string) ([]models.HistoryEntry, error) {
	out := []models.HistoryEntry{}
	for _, h := range m.rows {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

func TestAuditTrailPDF(t *testing.T) {
	h := newHarness(t)
	h.addBooking("b7e1c0de-1111-4000-8000-000000000000", models.BookingActive, "V1")
	resolution := "Replaced"
	h.issues.rows = []models.Issue{{ID: "X1", BookingID: "b7e1c0de-1111-4000-8000-000000000000", Type: models.IssueDamage, Severity: models.SeverityLow, Status: models.IssueResolved, Description: "Scratch", Resolution: &resolution}}
	hist := memHistory{rows: []models.HistoryEntry{
		{ID: "h2", BookingID: "b7e1c0de-1111-4000-8000-000000000000", Action: models.ActionBookingActivated, PerformedBy: "ptn-1", PerformedByType: "partner", Description: "Booking activated", CreatedAt: testNow},
		{ID: "h1", BookingID: "b7e1c0de-1111-4000-8000-000000000000", Action: models.ActionPaymentSent, PerformedBy: "drv-1", PerformedByType: "driver", Description: "Driver marked sent", CreatedAt: testNow.Add(-24 * time.Hour)},
	}}
	svc := ReportService{Bookings: h.bookings, History: hist, Issues: h.issues, Now: func() time.Time { return testNow }}

	pdf, name, err := svc.AuditTrailPDF(context.Background(), "b7e1c0de-1111-4000-8000-000000000000", driver)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
	if name != "AUDIT_B7E1C0DE_20260302.pdf" {
		t.Fatalf("filename = %s", name)
	}
	if _, _, err := svc.AuditTrailPDF(context.Background(), "b7e1c0de-1111-4000-8000-000000000000", stranger); !domain.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSafeFilenamePart(t *testing.T) {
	if got := safeFilenamePart(" a/b:c "); got != "a_b_c" {
		t.Fatalf("got %q", got)
	}
	if got := safeFilenamePart(""); got != "NA" {
		t.Fatalf("got %q", got)
	}
	if got := safeFilenamePart(strings.Repeat("x", 60)); len(got) != 40 {
		t.Fatalf("expected truncation, got %d chars", len(got))
	}
}
