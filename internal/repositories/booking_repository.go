package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	intdb "rentals/internal/db"
	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

type BookingRepository struct {
	DB *sql.DB
}

const bookingColumns = `
	id, driver_id, partner_id, vehicle_id,
	start_date, end_date, status,
	total_amount, weekly_rate,
	COALESCE(payment_method, ''), COALESCE(payment_status, ''),
	partner_acceptance_deadline,
	activated_at, COALESCE(activated_by, ''), COALESCE(activated_by_type, ''),
	COALESCE(activation_trigger, ''), requirements_bypassed,
	vehicle_released_at, COALESCE(vehicle_released_by, ''), COALESCE(vehicle_released_by_type, ''),
	COALESCE(vehicle_release_reason, ''),
	completed_at, cancelled_at, COALESCE(cancellation_reason, ''),
	created_at, updated_at`

// GetByID reads the authoritative booking row; issues are loaded separately.
func (r BookingRepository) GetByID(ctx context.Context, id string) (models.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Booking{}, domain.ValidationError{Field: "booking_id", Msg: "is required"}
	}

	row := conn(r.DB).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? LIMIT 1`, id)

	var (
		b                                    models.Booking
		vehicleID                            sql.NullString
		deadline, activatedAt, releasedAt    sql.NullTime
		completedAt, cancelledAt             sql.NullTime
		paymentMethod, paymentStatus, status string
		activation                           models.Activation
		release                              models.VehicleRelease
	)
	err := row.Scan(
		&b.ID, &b.DriverID, &b.PartnerID, &vehicleID,
		&b.StartDate, &b.EndDate, &status,
		&b.TotalAmount, &b.WeeklyRate,
		&paymentMethod, &paymentStatus,
		&deadline,
		&activatedAt, &activation.By, &activation.ByType,
		&activation.Trigger, &activation.RequirementsBypassed,
		&releasedAt, &release.By, &release.ByType,
		&release.Reason,
		&completedAt, &cancelledAt, &b.CancellationReason,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, domain.NotFoundError{Resource: "booking", ID: id, Err: err}
		}
		return models.Booking{}, fmt.Errorf("get booking %s: %w", id, err)
	}

	b.VehicleID = vehicleID.String
	b.Status = models.BookingStatus(status)
	b.PaymentMethod = models.PaymentMethod(paymentMethod)
	b.PaymentStatus = models.PaymentStatus(paymentStatus)
	b.PartnerAcceptanceDeadline = intdb.TimePtr(deadline)
	if activatedAt.Valid {
		activation.At = activatedAt.Time.UTC()
		b.Activation = &activation
	}
	if releasedAt.Valid {
		release.At = releasedAt.Time.UTC()
		b.Release = &release
	}
	b.CompletedAt = intdb.TimePtr(completedAt)
	b.CancelledAt = intdb.TimePtr(cancelledAt)
	return b, nil
}

// UpdateIf applies patch only when the row still matches cond; false means the row moved on.
func (r BookingRepository) UpdateIf(ctx context.Context, id string, cond models.BookingCondition, patch models.BookingPatch) (bool, error) {
	set := bookingSet(patch)
	if set.empty() {
		return false, fmt.Errorf("empty booking patch")
	}

	where := []string{"id = ?"}
	args := append([]any{}, set.args...)
	args = append(args, id)
	if len(cond.Statuses) > 0 {
		where = append(where, "status IN ("+intdb.Placeholders(len(cond.Statuses))+")")
		args = append(args, intdb.Args(cond.Statuses)...)
	}
	if cond.VehicleID != "" {
		where = append(where, "vehicle_id = ?")
		args = append(args, cond.VehicleID)
	}

	query := `UPDATE bookings SET ` + strings.Join(set.cols, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	res, err := conn(r.DB).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update booking %s: %w", id, err)
	}
	return intdb.Applied(res)
}

func bookingSet(p models.BookingPatch) *setClause {
	set := &setClause{}
	if p.Status != nil {
		set.add("status", string(*p.Status))
	}
	if p.PaymentMethod != nil {
		set.add("payment_method", string(*p.PaymentMethod))
	}
	if p.PaymentStatus != nil {
		set.add("payment_status", string(*p.PaymentStatus))
	}
	if p.PartnerAcceptanceDeadline != nil {
		set.add("partner_acceptance_deadline", p.PartnerAcceptanceDeadline.UTC())
	}
	if a := p.Activation; a != nil {
		set.add("activated_at", a.At.UTC())
		set.add("activated_by", a.By)
		set.add("activated_by_type", a.ByType)
		set.add("activation_trigger", a.Trigger)
		set.add("requirements_bypassed", a.RequirementsBypassed)
	}
	if p.ClearVehicle {
		set.raw("vehicle_id = NULL")
	}
	if rel := p.Release; rel != nil {
		set.add("vehicle_released_at", rel.At.UTC())
		set.add("vehicle_released_by", rel.By)
		set.add("vehicle_released_by_type", rel.ByType)
		set.add("vehicle_release_reason", intdb.NullIfEmpty(rel.Reason))
	}
	if p.CompletedAt != nil {
		set.add("completed_at", p.CompletedAt.UTC())
	}
	if p.CancelledAt != nil {
		set.add("cancelled_at", p.CancelledAt.UTC())
	}
	if p.CancellationReason != nil {
		set.add("cancellation_reason", intdb.NullIfEmpty(*p.CancellationReason))
	}
	if !set.empty() && !p.UpdatedAt.IsZero() {
		set.add("updated_at", p.UpdatedAt.UTC())
	}
	return set
}
