package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

type VerificationRepository struct {
	DB *sql.DB
}

// ActivationFacts reads insurance flags from the booking and the document review state.
// Required documents count as approved only when at least one exists and none is outstanding.
func (r VerificationRepository) ActivationFacts(ctx context.Context, bookingID string) (models.ActivationFacts, error) {
	var (
		f               models.ActivationFacts
		insuranceStatus sql.NullString
	)
	err := conn(r.DB).QueryRowContext(ctx, `
		SELECT insurance_required, insurance_status, insurance_provided_by_partner, documents_required
		FROM bookings
		WHERE id = ?
		LIMIT 1`, bookingID).Scan(&f.InsuranceRequired, &insuranceStatus, &f.InsuranceProvidedPartner, &f.DocumentsRequired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ActivationFacts{}, domain.NotFoundError{Resource: "booking", ID: bookingID, Err: err}
		}
		return models.ActivationFacts{}, fmt.Errorf("read activation facts: %w", err)
	}
	f.InsuranceValid = insuranceStatus.String == "valid" || insuranceStatus.String == "approved"

	var total, outstanding int
	err = conn(r.DB).QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status <> 'approved' THEN 1 ELSE 0 END), 0)
		FROM booking_documents
		WHERE booking_id = ?`, bookingID).Scan(&total, &outstanding)
	if err != nil {
		return models.ActivationFacts{}, fmt.Errorf("read booking documents: %w", err)
	}
	f.DocumentsAllApproved = total > 0 && outstanding == 0
	return f, nil
}

// MarkInsuranceUploaded records a valid insurance certificate on the booking.
func (r VerificationRepository) MarkInsuranceUploaded(ctx context.Context, bookingID string) error {
	_, err := conn(r.DB).ExecContext(ctx, `UPDATE bookings SET insurance_status = 'valid' WHERE id = ?`, bookingID)
	if err != nil {
		return fmt.Errorf("mark insurance uploaded: %w", err)
	}
	return nil
}
