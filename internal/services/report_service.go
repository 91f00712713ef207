package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"github.com/phpdave11/gofpdf"
	"go.uber.org/zap"
)

// ReportService renders the booking audit trail as a PDF for dispute resolution.
type ReportService struct {
	Bookings BookingStore
	History  HistoryReader
	Issues   IssueStore
	Now      func() time.Time
}

type auditReportData struct {
	Booking     models.Booking
	History     []models.HistoryEntry
	Issues      []models.Issue
	GeneratedAt time.Time
}

// AuditTrailPDF returns the PDF bytes and a download filename.
func (s ReportService) AuditTrailPDF(ctx context.Context, bookingID string, actor domain.Actor) ([]byte, string, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	if !participates(actor, b) {
		return nil, "", bookingUnauthorized(actor, b, "not a party to this booking")
	}
	entries, err := s.History.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, "", err
	}
	var issues []models.Issue
	if s.Issues != nil {
		issues, err = s.Issues.ListByBooking(ctx, b.ID)
		if err != nil {
			return nil, "", err
		}
	}
	utils.LogEvent(ctx, "report", "audit_trail", "rendering audit trail",
		zap.String("booking_id", b.ID), zap.Int("entries", len(entries)))
	return buildAuditPDF(auditReportData{Booking: b, History: entries, Issues: issues, GeneratedAt: clock(s.Now)})
}

func buildAuditPDF(d auditReportData) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Booking audit trail", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOOKING AUDIT TRAIL")
	pdf.Ln(12)

	b := d.Booking
	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("Booking        : %s", b.ID),
		fmt.Sprintf("Status         : %s", b.Status),
		fmt.Sprintf("Driver         : %s", safe(b.DriverID, "-")),
		fmt.Sprintf("Partner        : %s", safe(b.PartnerID, "-")),
		fmt.Sprintf("Vehicle        : %s", safe(b.VehicleID, "not bound")),
		fmt.Sprintf("Period         : %s to %s", utils.FormatDate(b.StartDate), utils.FormatDate(b.EndDate)),
		fmt.Sprintf("Total          : %s", utils.FormatPounds(b.TotalAmount)),
		fmt.Sprintf("Payment status : %s", safe(string(b.PaymentStatus), "-")),
		fmt.Sprintf("Generated      : %s", utils.FormatDateTime(d.GeneratedAt)),
	}
	for _, s := range lines {
		pdf.Cell(0, 6, s)
		pdf.Ln(6)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "History")
	pdf.Ln(9)

	entries := append([]models.HistoryEntry(nil), d.History...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	if len(entries) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Cell(0, 6, "No history recorded.")
		pdf.Ln(6)
	}
	for i, h := range entries {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, fmt.Sprintf("%d) %s  %s", i+1, utils.FormatDateTime(h.CreatedAt), h.Action))
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("By %s (%s): %s", safe(h.PerformedBy, "-"), safe(h.PerformedByType, "-"), safe(h.Description, "-")), "", "", false)
		pdf.Ln(1)
	}

	if len(d.Issues) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, "Issues")
		pdf.Ln(9)
		pdf.SetFont("Helvetica", "", 10)
		for _, is := range d.Issues {
			line := fmt.Sprintf("[%s/%s] %s - %s", is.Severity, is.Status, is.Type, is.Description)
			if is.Resolution != nil {
				line += " | resolved: " + *is.Resolution
			}
			pdf.MultiCell(0, 5, line, "", "", false)
			pdf.Ln(1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("AUDIT_%s_%s.pdf", safeFilenamePart(utils.ShortID(b.ID, 8)), d.GeneratedAt.Format("20060102"))
	return buf.Bytes(), filename, nil
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
