package handlers

import (
	"context"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/services"
)

type BookingAPI interface {
	Get(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error)
	ListHistory(ctx context.Context, bookingID string, actor domain.Actor) ([]models.HistoryEntry, error)
	CheckActivationReadiness(ctx context.Context, bookingID string, actor domain.Actor) (services.Readiness, error)
	Activate(ctx context.Context, in services.ActivateInput) (services.ActivationResult, error)
	Accept(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error)
	MarkInsuranceUploaded(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error)
	Complete(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error)
	Cancel(ctx context.Context, bookingID string, actor domain.Actor, reason string) (models.Booking, error)
}

type VehicleAPI interface {
	ReleaseVehicle(ctx context.Context, bookingID string, actor domain.Actor, reason string) (services.ReleaseResult, error)
}

type IssueAPI interface {
	ReportIssue(ctx context.Context, in services.ReportIssueInput) (services.IssueResult, error)
	ResolveIssue(ctx context.Context, bookingID, issueID, resolution string, actor domain.Actor) (models.Issue, error)
}

type LedgerAPI interface {
	CreateWeeklyInstruction(ctx context.Context, bookingID string, method models.PaymentMethod, actor domain.Actor) (services.InstructionResult, error)
	MarkSent(ctx context.Context, instructionID string, actor domain.Actor) (services.MarkSentResult, error)
	ConfirmBankTransfer(ctx context.Context, bookingID, instructionID string, actor domain.Actor) (services.ConfirmResult, error)
	RefundDeposit(ctx context.Context, instructionID string, amount float64, actor domain.Actor) (services.InstructionResult, error)
	RejectRefund(ctx context.Context, instructionID, reason string, actor domain.Actor) (services.InstructionResult, error)
}

type NotificationReader interface {
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
}

type ReportAPI interface {
	AuditTrailPDF(ctx context.Context, bookingID string, actor domain.Actor) ([]byte, string, error)
}

// Handlers binds HTTP routes to the booking services.
type Handlers struct {
	Bookings BookingAPI
	Vehicles VehicleAPI
	Issues   IssueAPI
	Ledger   LedgerAPI
	Reports  ReportAPI

	Notifications NotificationReader
	// OperatorChannel is the recipient id operators read their feed from.
	OperatorChannel string
}
