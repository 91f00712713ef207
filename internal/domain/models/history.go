package models

import "time"

// History actions.
const (
	ActionInstructionCreated = "payment_instruction_created"
	ActionPaymentSent        = "payment_marked_sent"
	ActionBookingPromoted    = "booking_pending_partner_approval"
	ActionPaymentConfirmed   = "bank_transfer_confirmed"
	ActionDepositRefunded    = "deposit_refunded"
	ActionRefundRejected     = "refund_rejected"
	ActionBookingAccepted    = "booking_accepted"
	ActionInsuranceUploaded  = "insurance_uploaded"
	ActionBookingActivated   = "booking_activated"
	ActionBookingCompleted   = "booking_completed"
	ActionBookingCancelled   = "booking_cancelled"
	ActionVehicleReleased    = "vehicle_released"
	ActionIssueReported      = "issue_reported"
	ActionIssueResolved      = "issue_resolved"
	ActionVehicleMaintenance = "vehicle_maintenance_required"
)

// HistoryEntry is an immutable audit record of one state-changing action.
type HistoryEntry struct {
	ID              string         `json:"id"`
	BookingID       string         `json:"booking_id"`
	Action          string         `json:"action"`
	PerformedBy     string         `json:"performed_by"`
	PerformedByType string         `json:"performed_by_type"`
	Details         map[string]any `json:"details,omitempty"`
	Description     string         `json:"description"`
	CreatedAt       time.Time      `json:"created_at"`
}
