package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intdb "rentals/internal/db"
	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

type VehicleRepository struct {
	DB *sql.DB
}

func (r VehicleRepository) GetByID(ctx context.Context, id string) (models.Vehicle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Vehicle{}, domain.ValidationError{Field: "vehicle_id", Msg: "is required"}
	}

	var (
		v                          models.Vehicle
		status                     string
		currentBooking             sql.NullString
		plate, infoPlate, reg      sql.NullString
		startedAt, releasedAt      sql.NullTime
		releasedBy, releasedByType sql.NullString
		releaseReason              sql.NullString
	)
	err := conn(r.DB).QueryRowContext(ctx, `
		SELECT id, partner_id, status, current_booking_id,
		       plate_number, car_info_plate, registration,
		       weekly_rate, daily_rate, active_booking_started_at,
		       released_at, released_by, released_by_type, release_reason,
		       updated_at
		FROM vehicles
		WHERE id = ?
		LIMIT 1`, id).Scan(
		&v.ID, &v.PartnerID, &status, &currentBooking,
		&plate, &infoPlate, &reg,
		&v.WeeklyRate, &v.DailyRate, &startedAt,
		&releasedAt, &releasedBy, &releasedByType, &releaseReason,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle", ID: id, Err: err}
		}
		return models.Vehicle{}, fmt.Errorf("get vehicle %s: %w", id, err)
	}

	v.Status = models.VehicleStatus(status)
	v.CurrentBookingID = currentBooking.String
	v.PlateNumber = plate.String
	v.CarInfoPlate = infoPlate.String
	v.Registration = reg.String
	v.ActiveBookingStartedAt = intdb.TimePtr(startedAt)
	if releasedAt.Valid {
		v.LastRelease = &models.VehicleRelease{
			At:     releasedAt.Time.UTC(),
			By:     releasedBy.String,
			ByType: releasedByType.String,
			Reason: releaseReason.String,
		}
	}
	return v, nil
}

// Bind claims the vehicle for a booking. It succeeds when the vehicle is free or
// already bound to the same booking; a vehicle held by another booking is a conflict.
// A maintenance flag survives a re-bind.
func (r VehicleRepository) Bind(ctx context.Context, vehicleID, bookingID string, at time.Time) error {
	res, err := conn(r.DB).ExecContext(ctx, `
		UPDATE vehicles
		SET status = CASE WHEN status = ? THEN status ELSE ? END,
		    current_booking_id = ?,
		    active_booking_started_at = COALESCE(active_booking_started_at, ?),
		    updated_at = ?
		WHERE id = ? AND (current_booking_id IS NULL OR current_booking_id = ?)`,
		string(models.VehicleMaintenanceRequired), string(models.VehicleBooked),
		bookingID, at.UTC(), at.UTC(), vehicleID, bookingID,
	)
	if err != nil {
		if intdb.IsDuplicateKey(err) {
			return domain.ConflictError{Resource: "vehicle", Msg: "booking already holds another vehicle", Err: err}
		}
		return fmt.Errorf("bind vehicle %s: %w", vehicleID, err)
	}
	ok, err := intdb.Applied(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// MySQL reports zero affected rows when nothing changed, so re-read before calling it a conflict.
	v, err := r.GetByID(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v.CurrentBookingID == bookingID {
		return nil
	}
	return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("vehicle %s is bound to another booking", vehicleID)}
}

// Release frees the vehicle if it is still held by bookingID.
func (r VehicleRepository) Release(ctx context.Context, vehicleID, bookingID string, rel models.VehicleRelease) (bool, error) {
	res, err := conn(r.DB).ExecContext(ctx, `
		UPDATE vehicles
		SET status = ?, current_booking_id = NULL, active_booking_started_at = NULL,
		    released_at = ?, released_by = ?, released_by_type = ?, release_reason = ?,
		    updated_at = ?
		WHERE id = ? AND current_booking_id = ?`,
		string(models.VehicleAvailable), rel.At.UTC(), rel.By, rel.ByType, intdb.NullIfEmpty(rel.Reason),
		rel.At.UTC(), vehicleID, bookingID,
	)
	if err != nil {
		return false, fmt.Errorf("release vehicle %s: %w", vehicleID, err)
	}
	return intdb.Applied(res)
}

// SetStatus changes the fleet status without touching the binding.
func (r VehicleRepository) SetStatus(ctx context.Context, vehicleID string, status models.VehicleStatus, at time.Time) error {
	_, err := conn(r.DB).ExecContext(ctx, `
		UPDATE vehicles SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), at.UTC(), vehicleID,
	)
	if err != nil {
		return fmt.Errorf("set vehicle %s status: %w", vehicleID, err)
	}
	return nil
}
