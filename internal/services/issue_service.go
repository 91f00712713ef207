package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type IssueService struct {
	Bookings BookingStore
	Issues   IssueStore
	Vehicles VehicleService
	Recorder Recorder
	Fanout   Fanout
	Now      func() time.Time
}

type ReportIssueInput struct {
	BookingID   string
	Type        models.IssueType
	Description string
	Severity    models.IssueSeverity
	Images      []string
	Actor       domain.Actor
}

type IssueResult struct {
	Issue models.Issue `json:"issue"`
	// VehicleFlagged is true when a critical issue moved the vehicle to maintenance.
	VehicleFlagged bool `json:"vehicle_flagged"`
}

func (in ReportIssueInput) validate() error {
	if !in.Type.Valid() {
		return domain.ValidationError{Field: "type", Msg: "must be one of mechanical, damage, cleanliness, documentation, other"}
	}
	if !in.Severity.Valid() {
		return domain.ValidationError{Field: "severity", Msg: "must be one of low, medium, high, critical"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return domain.ValidationError{Field: "description", Msg: "is required"}
	}
	return nil
}

// ReportIssue logs a problem against a booking in any status. Critical issues
// force the bound vehicle into maintenance.
func (s IssueService) ReportIssue(ctx context.Context, in ReportIssueInput) (IssueResult, error) {
	if err := in.validate(); err != nil {
		return IssueResult{}, err
	}
	b, err := s.Bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		return IssueResult{}, err
	}
	if !participates(in.Actor, b) {
		return IssueResult{}, bookingUnauthorized(in.Actor, b, "only the booking's driver, partner or an operator can report an issue")
	}
	if _, err := domain.Next(b.Status, domain.ActionReportIssue); err != nil {
		return IssueResult{}, err
	}

	issue := models.Issue{
		ID:             uuid.NewString(),
		BookingID:      b.ID,
		Type:           in.Type,
		Description:    strings.TrimSpace(in.Description),
		Severity:       in.Severity,
		Status:         models.IssueOpen,
		ReportedBy:     in.Actor.ID,
		ReportedByType: string(in.Actor.Type),
		Images:         utils.CleanList(in.Images),
		ReportedAt:     clock(s.Now),
	}
	if err := s.Issues.Create(ctx, issue); err != nil {
		return IssueResult{}, err
	}

	flagged := false
	if issue.Severity == models.SeverityCritical {
		if flagged, err = s.Vehicles.ForceMaintenance(ctx, b); err != nil {
			return IssueResult{}, err
		}
	}

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionIssueReported,
		PerformedBy:     in.Actor.ID,
		PerformedByType: string(in.Actor.Type),
		Details: map[string]any{
			"issue_id": issue.ID,
			"type":     string(issue.Type),
			"severity": string(issue.Severity),
		},
		Description: fmt.Sprintf("%s issue reported (%s)", upperFirst(string(issue.Type)), issue.Severity),
	})
	if flagged {
		s.Recorder.History(ctx, models.HistoryEntry{
			BookingID:       b.ID,
			Action:          models.ActionVehicleMaintenance,
			PerformedBy:     in.Actor.ID,
			PerformedByType: string(in.Actor.Type),
			Details:         map[string]any{"issue_id": issue.ID, "vehicle_id": b.VehicleID},
			Description:     "Vehicle set to maintenance required after critical issue",
		})
	}

	priority := models.PriorityNormal
	if issue.Severity.Escalated() {
		priority = models.PriorityHigh
	}
	data := map[string]any{"issue_id": issue.ID, "type": string(issue.Type), "severity": string(issue.Severity)}
	s.Fanout.Emit(ctx, b, in.Actor, Message{
		Type:     models.NotifyIssueReported,
		Title:    "Issue reported",
		Body:     fmt.Sprintf("A %s %s issue was reported: %s", issue.Severity, issue.Type, issue.Description),
		Data:     data,
		Priority: priority,
	})
	if issue.Severity == models.SeverityCritical {
		s.Fanout.Emit(ctx, b, in.Actor, Message{
			Type:     models.NotifyCriticalIssueAlert,
			Title:    "Critical issue",
			Body:     fmt.Sprintf("Critical %s issue on booking %s: %s", issue.Type, utils.ShortID(b.ID, 8), issue.Description),
			Data:     map[string]any{"issue_id": issue.ID, "vehicle_id": b.VehicleID, "vehicle_flagged": flagged},
			Priority: models.PriorityHigh,
		})
	}

	utils.LogEvent(ctx, "issue", "report", "issue reported",
		zap.String("booking_id", b.ID), zap.String("issue_id", issue.ID), zap.String("severity", string(issue.Severity)))
	return IssueResult{Issue: issue, VehicleFlagged: flagged}, nil
}

// ResolveIssue closes an open issue. Only the partner or an operator may resolve.
func (s IssueService) ResolveIssue(ctx context.Context, bookingID, issueID, resolution string, actor domain.Actor) (models.Issue, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return models.Issue{}, domain.ValidationError{Field: "resolution", Msg: "is required"}
	}
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Issue{}, err
	}
	if !ownsAsPartner(actor, b) {
		return models.Issue{}, bookingUnauthorized(actor, b, "only the partner or an operator can resolve issues")
	}
	issue, err := s.Issues.GetByID(ctx, b.ID, issueID)
	if err != nil {
		return models.Issue{}, err
	}
	if issue.Status == models.IssueResolved {
		return models.Issue{}, domain.AlreadyInTerminalStateError{Resource: "issue", ID: issue.ID, State: string(issue.Status)}
	}

	now := clock(s.Now)
	ok, err := s.Issues.Resolve(ctx, b.ID, issue.ID, resolution, actor.ID, string(actor.Type), now)
	if err != nil {
		return models.Issue{}, err
	}
	if !ok {
		return models.Issue{}, domain.AlreadyInTerminalStateError{Resource: "issue", ID: issue.ID, State: string(models.IssueResolved)}
	}
	by, byType := actor.ID, string(actor.Type)
	issue.Status = models.IssueResolved
	issue.Resolution = &resolution
	issue.ResolvedBy = &by
	issue.ResolvedByType = &byType
	issue.ResolvedAt = &now

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionIssueResolved,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         map[string]any{"issue_id": issue.ID, "resolution": resolution},
		Description:     "Issue resolved: " + resolution,
	})
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     models.NotifyIssueResolved,
		Title:    "Issue resolved",
		Body:     fmt.Sprintf("The %s issue on your booking was resolved: %s", issue.Type, resolution),
		Data:     map[string]any{"issue_id": issue.ID},
		Priority: models.PriorityNormal,
	})
	return issue, nil
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
