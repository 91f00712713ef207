package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
)

var bookingRowColumns = []string{
	"id", "driver_id", "partner_id", "vehicle_id",
	"start_date", "end_date", "status",
	"total_amount", "weekly_rate",
	"payment_method", "payment_status",
	"partner_acceptance_deadline",
	"activated_at", "activated_by", "activated_by_type",
	"activation_trigger", "requirements_bypassed",
	"vehicle_released_at", "vehicle_released_by", "vehicle_released_by_type",
	"vehicle_release_reason",
	"completed_at", "cancelled_at", "cancellation_reason",
	"created_at", "updated_at",
}

func TestBookingGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM bookings WHERE id = \\?").WithArgs("bk-missing").
		WillReturnError(sql.ErrNoRows)

	_, err = BookingRepository{DB: db}.GetByID(context.Background(), "bk-missing")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingGetByIDMapsActivationAndVehicle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM bookings WHERE id = \\?").WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).AddRow(
			"bk-1", "drv-1", "ptn-1", "veh-1",
			now, now.Add(14*24*time.Hour), "active",
			600.0, 300.0,
			"bank_transfer", "confirmed",
			nil,
			now, "ptn-1", "partner",
			"manual", true,
			nil, "", "",
			"",
			nil, nil, "",
			now, now,
		))

	b, err := BookingRepository{DB: db}.GetByID(context.Background(), "bk-1")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.Status != models.BookingActive || b.VehicleID != "veh-1" {
		t.Fatalf("unexpected booking: %+v", b)
	}
	if b.Activation == nil || !b.Activation.RequirementsBypassed || b.Activation.By != "ptn-1" {
		t.Fatalf("activation not mapped: %+v", b.Activation)
	}
	if b.Release != nil {
		t.Fatalf("release should be nil, got %+v", b.Release)
	}
	if b.PaymentStatus != models.PaymentStatusConfirmed {
		t.Fatalf("payment status = %q", b.PaymentStatus)
	}
}

func TestBookingUpdateIfGuardsStatusAndVehicle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE bookings SET vehicle_id = NULL, vehicle_released_at = \\?, vehicle_released_by = \\?, vehicle_released_by_type = \\?, vehicle_release_reason = \\?, updated_at = \\? WHERE id = \\? AND status IN \\(\\?,\\?\\) AND vehicle_id = \\?").
		WithArgs(at, "ptn-1", "partner", "end of hire", at, "bk-1", "active", "in_progress", "veh-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := BookingRepository{DB: db}.UpdateIf(context.Background(), "bk-1",
		models.BookingCondition{
			Statuses:  []models.BookingStatus{models.BookingActive, models.BookingInProgress},
			VehicleID: "veh-1",
		},
		models.BookingPatch{
			ClearVehicle: true,
			Release:      &models.VehicleRelease{At: at, By: "ptn-1", ByType: "partner", Reason: "end of hire"},
			UpdatedAt:    at,
		})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ok {
		t.Fatalf("expected update to apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBookingUpdateIfReportsLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE bookings SET status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	status := models.BookingPendingPartnerApproval
	ok, err := BookingRepository{DB: db}.UpdateIf(context.Background(), "bk-1",
		models.BookingCondition{Statuses: []models.BookingStatus{models.BookingPendingPayment}},
		models.BookingPatch{Status: &status, UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatalf("expected no rows applied")
	}
}

func TestBookingUpdateIfRejectsEmptyPatch(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	if _, err := (BookingRepository{DB: db}).UpdateIf(context.Background(), "bk-1", models.BookingCondition{}, models.BookingPatch{UpdatedAt: time.Now()}); err == nil {
		t.Fatalf("expected error for empty patch")
	}
}
