package services

import (
	"context"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"
)

// Store interfaces are satisfied by the MySQL repositories; tests use in-memory fakes.

type BookingStore interface {
	GetByID(ctx context.Context, id string) (models.Booking, error)
	UpdateIf(ctx context.Context, id string, cond models.BookingCondition, patch models.BookingPatch) (bool, error)
}

type VehicleStore interface {
	GetByID(ctx context.Context, id string) (models.Vehicle, error)
	Bind(ctx context.Context, vehicleID, bookingID string, at time.Time) error
	Release(ctx context.Context, vehicleID, bookingID string, rel models.VehicleRelease) (bool, error)
	SetStatus(ctx context.Context, vehicleID string, status models.VehicleStatus, at time.Time) error
}

type InstructionStore interface {
	GetByID(ctx context.Context, id string) (models.PaymentInstruction, error)
	Create(ctx context.Context, in models.PaymentInstruction) error
	FindActiveWeekly(ctx context.Context, bookingID string) (*models.PaymentInstruction, error)
	ListByBooking(ctx context.Context, bookingID string) ([]models.PaymentInstruction, error)
	UpdateIf(ctx context.Context, id string, cond models.InstructionCondition, patch models.InstructionPatch) (bool, error)
	MarkPendingReceived(ctx context.Context, bookingID, exceptID, confirmedBy string, at time.Time) (int64, error)
}

type TransactionStore interface {
	HasRefundFor(ctx context.Context, instructionID string) (bool, error)
	CreateRefundPair(ctx context.Context, expense, income models.Transaction) error
}

type IssueStore interface {
	Create(ctx context.Context, is models.Issue) error
	GetByID(ctx context.Context, bookingID, issueID string) (models.Issue, error)
	ListByBooking(ctx context.Context, bookingID string) ([]models.Issue, error)
	Resolve(ctx context.Context, bookingID, issueID, resolution, by, byType string, at time.Time) (bool, error)
}

type HistoryReader interface {
	ListByBooking(ctx context.Context, bookingID string) ([]models.HistoryEntry, error)
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, ev models.OutboxEvent) error
}

// PartnerDirectory resolves partner payee accounts and the staff roster.
type PartnerDirectory interface {
	BankDetails(ctx context.Context, partnerID string) (models.BankDetails, error)
	FinanceStaff(ctx context.Context, partnerID string) ([]models.StaffMember, error)
}

// RateProvider supplies the weekly amount for a new payment instruction.
type RateProvider interface {
	WeeklyRate(ctx context.Context, b models.Booking, v *models.Vehicle) (float64, error)
}

// VerificationProvider supplies the insurance and document facts used by activation.
type VerificationProvider interface {
	ActivationFacts(ctx context.Context, bookingID string) (models.ActivationFacts, error)
}

type InsuranceRecorder interface {
	MarkInsuranceUploaded(ctx context.Context, bookingID string) error
}

// Kicker nudges the outbox drain worker after a write. A nil Kicker leaves draining to the schedule.
type Kicker interface {
	Kick(ctx context.Context)
}

// DefaultRateProvider prefers the vehicle's weekly rate, then seven daily rates, then the rate on the booking.
type DefaultRateProvider struct{}

func (DefaultRateProvider) WeeklyRate(_ context.Context, b models.Booking, v *models.Vehicle) (float64, error) {
	var rate float64
	switch {
	case v != nil && v.WeeklyRate > 0:
		rate = v.WeeklyRate
	case v != nil && v.DailyRate > 0:
		rate = v.DailyRate * 7
	default:
		rate = b.WeeklyRate
	}
	rate = utils.RoundMoney(rate)
	if rate <= 0 {
		return 0, domain.ValidationError{Field: "weekly_rate", Msg: "no rate configured for booking " + b.ID}
	}
	return rate, nil
}

// clock returns now() when set, otherwise the UTC wall clock.
func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return utils.NowUTC()
}
