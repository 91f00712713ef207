package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"go.uber.org/zap"
)

// VehicleService owns the booking <-> vehicle binding.
type VehicleService struct {
	Bookings BookingStore
	Vehicles VehicleStore
	Recorder Recorder
	Fanout   Fanout
	Now      func() time.Time
}

type ReleaseResult struct {
	Booking models.Booking `json:"booking"`
	Vehicle models.Vehicle `json:"vehicle"`
	// VehicleSynced is false when the booking was released but the vehicle row could not be updated.
	VehicleSynced bool `json:"vehicle_synced"`
}

// ReleaseVehicle unbinds the vehicle from the booking without changing the booking status.
func (s VehicleService) ReleaseVehicle(ctx context.Context, bookingID string, actor domain.Actor, reason string) (ReleaseResult, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return ReleaseResult{}, err
	}
	if !participates(actor, b) {
		return ReleaseResult{}, bookingUnauthorized(actor, b, "only the booking's driver, partner or an operator can release its vehicle")
	}
	if !domain.Allows(b.Status, domain.ActionReleaseVehicle) {
		return ReleaseResult{}, domain.InvalidStateError{Resource: "booking", Current: string(b.Status), Operation: "release vehicle of"}
	}
	if !b.HasVehicle() {
		return ReleaseResult{}, domain.NoVehicleBoundError{BookingID: b.ID}
	}
	v, err := s.Vehicles.GetByID(ctx, b.VehicleID)
	if err != nil {
		return ReleaseResult{}, err
	}

	now := clock(s.Now)
	rel := models.VehicleRelease{At: now, By: actor.ID, ByType: string(actor.Type), Reason: strings.TrimSpace(reason)}
	patch := models.BookingPatch{ClearVehicle: true, Release: &rel, UpdatedAt: now}
	cond := models.BookingCondition{Statuses: domain.StatusesAllowing(domain.ActionReleaseVehicle), VehicleID: v.ID}
	ok, err := s.Bookings.UpdateIf(ctx, b.ID, cond, patch)
	if err != nil {
		return ReleaseResult{}, err
	}
	if !ok {
		return ReleaseResult{}, s.releaseRaceError(ctx, b.ID)
	}
	patch.Apply(&b)

	held := v.CurrentBookingID == b.ID
	synced := s.releaseVehicleRow(ctx, v, b.ID, rel)
	if synced && held {
		v.Status = models.VehicleAvailable
		v.CurrentBookingID = ""
		v.ActiveBookingStartedAt = nil
		v.LastRelease = &rel
	}

	details := map[string]any{"vehicle_id": v.ID}
	if rel.Reason != "" {
		details["reason"] = rel.Reason
	}
	desc := fmt.Sprintf("Vehicle %s released from booking by %s", v.RegistrationString(), actor.Type)
	if rel.Reason != "" {
		desc += ": " + rel.Reason
	}
	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionVehicleReleased,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         details,
		Description:     desc,
	})
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     models.NotifyVehicleReleased,
		Title:    "Vehicle released",
		Body:     fmt.Sprintf("Vehicle %s is no longer assigned to booking %s.", v.RegistrationString(), utils.ShortID(b.ID, 8)),
		Data:     map[string]any{"vehicle_id": v.ID, "reason": rel.Reason},
		Priority: models.PriorityNormal,
	})

	utils.LogEvent(ctx, "vehicle", "release", "vehicle released",
		zap.String("booking_id", b.ID), zap.String("vehicle_id", v.ID), zap.Bool("vehicle_synced", synced))
	return ReleaseResult{Booking: b, Vehicle: v, VehicleSynced: synced}, nil
}

// releaseRaceError classifies a conditional update that matched nothing.
func (s VehicleService) releaseRaceError(ctx context.Context, bookingID string) error {
	fresh, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if !fresh.HasVehicle() {
		return domain.NoVehicleBoundError{BookingID: bookingID}
	}
	return domain.InvalidStateError{Resource: "booking", Current: string(fresh.Status), Operation: "release vehicle of"}
}

// releaseVehicleRow frees the vehicle after the booking side was cleared. A vehicle
// not held by the booking needs no write. Failures leave the booking authoritative
// and are logged for reconciliation.
func (s VehicleService) releaseVehicleRow(ctx context.Context, v models.Vehicle, bookingID string, rel models.VehicleRelease) bool {
	if v.CurrentBookingID != bookingID {
		return true
	}
	ok, err := s.Vehicles.Release(ctx, v.ID, bookingID, rel)
	if err != nil {
		utils.LogWarn(ctx, "vehicle", "release", "booking released but vehicle update failed", err,
			zap.String("booking_id", bookingID), zap.String("vehicle_id", v.ID))
		return false
	}
	if !ok {
		utils.LogWarn(ctx, "vehicle", "release", "vehicle changed hands before release", nil,
			zap.String("booking_id", bookingID), zap.String("vehicle_id", v.ID))
		return false
	}
	return true
}

// freeVehicle is releaseVehicleRow for callers that have not loaded the vehicle.
func (s VehicleService) freeVehicle(ctx context.Context, vehicleID, bookingID string, rel models.VehicleRelease) bool {
	v, err := s.Vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		utils.LogWarn(ctx, "vehicle", "release", "vehicle lookup failed after booking release", err,
			zap.String("booking_id", bookingID), zap.String("vehicle_id", vehicleID))
		return false
	}
	return s.releaseVehicleRow(ctx, v, bookingID, rel)
}

// Bind claims the booking's vehicle. Binding an already bound pair is a no-op.
func (s VehicleService) Bind(ctx context.Context, b models.Booking) error {
	if !b.HasVehicle() {
		return nil
	}
	return s.Vehicles.Bind(ctx, b.VehicleID, b.ID, clock(s.Now))
}

// EnsureBindable fails when the booking's vehicle is held by a different booking.
func (s VehicleService) EnsureBindable(ctx context.Context, b models.Booking) error {
	if !b.HasVehicle() {
		return nil
	}
	v, err := s.Vehicles.GetByID(ctx, b.VehicleID)
	if err != nil {
		return err
	}
	if v.CurrentBookingID != "" && v.CurrentBookingID != b.ID {
		return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("vehicle %s is bound to another booking", v.ID)}
	}
	return nil
}

// ForceMaintenance flags the booking's vehicle as needing maintenance, keeping the binding.
// A vehicle the booking only references, but does not hold, is left alone.
func (s VehicleService) ForceMaintenance(ctx context.Context, b models.Booking) (bool, error) {
	if !b.HasVehicle() {
		return false, nil
	}
	v, err := s.Vehicles.GetByID(ctx, b.VehicleID)
	if err != nil {
		return false, err
	}
	if v.CurrentBookingID != b.ID {
		return false, nil
	}
	if err := s.Vehicles.SetStatus(ctx, v.ID, models.VehicleMaintenanceRequired, clock(s.Now)); err != nil {
		return false, err
	}
	return true, nil
}
