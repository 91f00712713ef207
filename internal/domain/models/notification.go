package models

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification types.
const (
	NotifyPaymentInstructions = "payment_instructions"
	NotifyNewPaymentChannel   = "new_payment_channel"
	NotifyNewBooking          = "new_booking"
	NotifyPaymentSent         = "payment_sent"
	NotifyPaymentConfirmed    = "payment_confirmed"
	NotifyDepositRefunded     = "deposit_refunded"
	NotifyRefundRejected      = "refund_rejected"
	NotifyBookingAccepted     = "booking_accepted"
	NotifyBookingActivated    = "booking_activated"
	NotifyBookingCompleted    = "booking_completed"
	NotifyBookingCancelled    = "booking_cancelled"
	NotifyVehicleReleased     = "vehicle_released"
	NotifyIssueReported       = "issue_reported"
	NotifyIssueResolved       = "issue_resolved"
	NotifyCriticalIssueAlert  = "critical_issue_alert"
)

type Notification struct {
	ID            string         `json:"id"`
	RecipientID   string         `json:"recipient_id"`
	RecipientType string         `json:"recipient_type"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
	Priority      Priority       `json:"priority"`
	Read          bool           `json:"read"`
	CreatedAt     time.Time      `json:"created_at"`
}

// StaffMember is a partner employee resolved by the identity collaborator.
type StaffMember struct {
	ID                  string `json:"id"`
	PartnerID           string `json:"partner_id"`
	Name                string `json:"name"`
	FinancialVisibility bool   `json:"financial_visibility"`
}
