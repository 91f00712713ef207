package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	intdb "rentals/internal/db"
	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

type IssueRepository struct {
	DB *sql.DB
}

func (r IssueRepository) Create(ctx context.Context, is models.Issue) error {
	images := is.Images
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode issue images: %w", err)
	}
	_, err = conn(r.DB).ExecContext(ctx, `
		INSERT INTO booking_issues (
			id, booking_id, type, description, severity, status,
			reported_by, reported_by_type, images_json, reported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		is.ID, is.BookingID, string(is.Type), is.Description, string(is.Severity), string(is.Status),
		is.ReportedBy, is.ReportedByType, string(raw), is.ReportedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

const issueColumns = `
	id, booking_id, type, description, severity, status,
	reported_by, reported_by_type, COALESCE(images_json, '[]'), reported_at,
	resolution, resolved_by, resolved_by_type, resolved_at`

func scanIssue(ctx context.Context, row rowScanner) (models.Issue, error) {
	var (
		is                     models.Issue
		typ, severity, status  string
		images                 string
		resolution, resolvedBy sql.NullString
		resolvedByType         sql.NullString
		resolvedAt             sql.NullTime
	)
	if err := row.Scan(
		&is.ID, &is.BookingID, &typ, &is.Description, &severity, &status,
		&is.ReportedBy, &is.ReportedByType, &images, &is.ReportedAt,
		&resolution, &resolvedBy, &resolvedByType, &resolvedAt,
	); err != nil {
		return models.Issue{}, err
	}
	is.Type = models.IssueType(typ)
	is.Severity = models.IssueSeverity(severity)
	is.Status = models.IssueStatus(status)
	is.Images = []string{}
	decodeColumn(ctx, "booking_issues", "images_json", is.ID, images, &is.Images)
	is.Resolution = intdb.StringPtr(resolution)
	is.ResolvedBy = intdb.StringPtr(resolvedBy)
	is.ResolvedByType = intdb.StringPtr(resolvedByType)
	is.ResolvedAt = intdb.TimePtr(resolvedAt)
	return is, nil
}

// ListByBooking returns issues in reporting order.
func (r IssueRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.Issue, error) {
	rows, err := conn(r.DB).QueryContext(ctx, `
		SELECT `+issueColumns+`
		FROM booking_issues
		WHERE booking_id = ?
		ORDER BY reported_at ASC, id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	out := []models.Issue{}
	for rows.Next() {
		is, err := scanIssue(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (r IssueRepository) GetByID(ctx context.Context, bookingID, issueID string) (models.Issue, error) {
	row := conn(r.DB).QueryRowContext(ctx, `
		SELECT `+issueColumns+`
		FROM booking_issues
		WHERE id = ? AND booking_id = ?
		LIMIT 1`, issueID, bookingID)
	is, err := scanIssue(ctx, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Issue{}, domain.NotFoundError{Resource: "issue", ID: issueID, Err: err}
		}
		return models.Issue{}, fmt.Errorf("get issue %s: %w", issueID, err)
	}
	return is, nil
}

// Resolve closes an open issue; false when it was already resolved.
func (r IssueRepository) Resolve(ctx context.Context, bookingID, issueID, resolution, by, byType string, at time.Time) (bool, error) {
	res, err := conn(r.DB).ExecContext(ctx, `
		UPDATE booking_issues
		SET status = ?, resolution = ?, resolved_by = ?, resolved_by_type = ?, resolved_at = ?
		WHERE id = ? AND booking_id = ? AND status = ?`,
		string(models.IssueResolved), resolution, by, byType, at.UTC(),
		issueID, bookingID, string(models.IssueOpen),
	)
	if err != nil {
		return false, fmt.Errorf("resolve issue %s: %w", issueID, err)
	}
	return intdb.Applied(res)
}
