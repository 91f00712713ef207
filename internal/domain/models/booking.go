package models

import "time"

type BookingStatus string

const (
	BookingPendingPayment         BookingStatus = "pending_payment"
	BookingPendingPartnerApproval BookingStatus = "pending_partner_approval"
	BookingPartnerAccepted        BookingStatus = "partner_accepted"
	BookingPendingInsuranceUpload BookingStatus = "pending_insurance_upload"
	BookingConfirmed              BookingStatus = "confirmed"
	BookingActive                 BookingStatus = "active"
	BookingInProgress             BookingStatus = "in_progress"
	BookingCompleted              BookingStatus = "completed"
	BookingCancelled              BookingStatus = "cancelled"
)

// PaymentStatus is the booking-level payment cache. The ledger is authoritative.
type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = ""
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSent      PaymentStatus = "sent"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusAuto      PaymentStatus = "auto"
)

// Booking captures the lifecycle row plus its joined issues.
type Booking struct {
	ID        string `json:"id"`
	DriverID  string `json:"driver_id"`
	PartnerID string `json:"partner_id"`
	VehicleID string `json:"vehicle_id,omitempty"`

	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Status    BookingStatus `json:"status"`

	TotalAmount   float64       `json:"total_amount"`
	WeeklyRate    float64       `json:"weekly_rate"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`

	PartnerAcceptanceDeadline *time.Time `json:"partner_acceptance_deadline,omitempty"`

	Activation *Activation     `json:"activation,omitempty"`
	Release    *VehicleRelease `json:"release,omitempty"`

	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	Issues []Issue `json:"issues,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasVehicle reports whether a vehicle is currently bound.
func (b Booking) HasVehicle() bool { return b.VehicleID != "" }

// Activation stamps who moved the booking to active and how.
type Activation struct {
	At                   time.Time `json:"at"`
	By                   string    `json:"by"`
	ByType               string    `json:"by_type"`
	Trigger              string    `json:"trigger"`
	RequirementsBypassed bool      `json:"requirements_bypassed"`
}

// VehicleRelease records who unbound a vehicle and why.
type VehicleRelease struct {
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	ByType string    `json:"by_type"`
	Reason string    `json:"reason,omitempty"`
}

// BookingCondition guards a conditional booking update. Empty fields are not checked.
type BookingCondition struct {
	Statuses  []BookingStatus
	VehicleID string
}

// Matches evaluates the condition against a snapshot.
func (c BookingCondition) Matches(b Booking) bool {
	if len(c.Statuses) > 0 {
		ok := false
		for _, s := range c.Statuses {
			if b.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.VehicleID != "" && b.VehicleID != c.VehicleID {
		return false
	}
	return true
}

// BookingPatch is a partial update; nil fields stay untouched.
type BookingPatch struct {
	Status                    *BookingStatus
	PaymentMethod             *PaymentMethod
	PaymentStatus             *PaymentStatus
	PartnerAcceptanceDeadline *time.Time
	Activation                *Activation
	ClearVehicle              bool
	Release                   *VehicleRelease
	CompletedAt               *time.Time
	CancelledAt               *time.Time
	CancellationReason        *string
	UpdatedAt                 time.Time
}

// Apply mutates b in place with the non-nil patch fields.
func (p BookingPatch) Apply(b *Booking) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.PaymentMethod != nil {
		b.PaymentMethod = *p.PaymentMethod
	}
	if p.PaymentStatus != nil {
		b.PaymentStatus = *p.PaymentStatus
	}
	if p.PartnerAcceptanceDeadline != nil {
		t := *p.PartnerAcceptanceDeadline
		b.PartnerAcceptanceDeadline = &t
	}
	if p.Activation != nil {
		a := *p.Activation
		b.Activation = &a
	}
	if p.ClearVehicle {
		b.VehicleID = ""
	}
	if p.Release != nil {
		r := *p.Release
		b.Release = &r
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		b.CompletedAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		b.CancelledAt = &t
	}
	if p.CancellationReason != nil {
		b.CancellationReason = *p.CancellationReason
	}
	if !p.UpdatedAt.IsZero() {
		b.UpdatedAt = p.UpdatedAt
	}
}

// ActivationFacts are supplied by the document/insurance verification collaborator.
type ActivationFacts struct {
	InsuranceRequired        bool `json:"insurance_required"`
	InsuranceValid           bool `json:"insurance_valid"`
	InsuranceProvidedPartner bool `json:"insurance_provided_by_partner"`
	DocumentsRequired        bool `json:"documents_required"`
	DocumentsAllApproved     bool `json:"documents_all_approved"`
}

func (f ActivationFacts) InsuranceSatisfied() bool {
	return !f.InsuranceRequired || f.InsuranceValid || f.InsuranceProvidedPartner
}

func (f ActivationFacts) DocumentsSatisfied() bool {
	return !f.DocumentsRequired || f.DocumentsAllApproved
}
