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

// Activation requirements, in evaluation order.
const (
	RequirementStatus    = "status"
	RequirementPayment   = "payment"
	RequirementInsurance = "insurance"
	RequirementDocuments = "documents"
)

const TriggerManual = "manual"

// BookingService drives the booking lifecycle through the transition table.
type BookingService struct {
	Bookings     BookingStore
	Issues       IssueStore
	History      HistoryReader
	Verification VerificationProvider
	Insurance    InsuranceRecorder
	Vehicles     VehicleService
	Recorder     Recorder
	Fanout       Fanout
	Now          func() time.Time
}

type ReadinessChecks struct {
	Status    bool `json:"status"`
	Payment   bool `json:"payment"`
	Insurance bool `json:"insurance"`
	Documents bool `json:"documents"`
}

type Readiness struct {
	BookingID string               `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
	Ready     bool                 `json:"ready"`
	Checks    ReadinessChecks      `json:"checks"`
	Unmet     []string             `json:"unmet"`
}

type ActivateInput struct {
	BookingID          string
	PartnerID          string
	Actor              domain.Actor
	Trigger            string
	BypassRequirements bool
}

type ActivationResult struct {
	Booking              models.Booking `json:"booking"`
	AlreadyActive        bool           `json:"already_active"`
	BypassedRequirements []string       `json:"bypassed_requirements,omitempty"`
}

func evaluateReadiness(b models.Booking, f models.ActivationFacts) Readiness {
	r := Readiness{BookingID: b.ID, Status: b.Status, Unmet: []string{}}
	r.Checks.Status = containsBookingStatus(domain.ActivationEligible(), b.Status)
	r.Checks.Payment = b.PaymentStatus == models.PaymentStatusConfirmed || b.PaymentStatus == models.PaymentStatusPaid
	r.Checks.Insurance = f.InsuranceSatisfied()
	r.Checks.Documents = f.DocumentsSatisfied()

	if !r.Checks.Status {
		r.Unmet = append(r.Unmet, RequirementStatus)
	}
	if !r.Checks.Payment {
		r.Unmet = append(r.Unmet, RequirementPayment)
	}
	if !r.Checks.Insurance {
		r.Unmet = append(r.Unmet, RequirementInsurance)
	}
	if !r.Checks.Documents {
		r.Unmet = append(r.Unmet, RequirementDocuments)
	}
	r.Ready = len(r.Unmet) == 0
	return r
}

// CheckActivationReadiness evaluates the four activation checks without mutating anything.
func (s BookingService) CheckActivationReadiness(ctx context.Context, bookingID string, actor domain.Actor) (Readiness, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return Readiness{}, err
	}
	if !participates(actor, b) {
		return Readiness{}, bookingUnauthorized(actor, b, "not a party to this booking")
	}
	facts, err := s.Verification.ActivationFacts(ctx, b.ID)
	if err != nil {
		return Readiness{}, err
	}
	return evaluateReadiness(b, facts), nil
}

// Activate moves an eligible booking to active and binds its vehicle.
// Activating an active booking is a success that records nothing new.
func (s BookingService) Activate(ctx context.Context, in ActivateInput) (ActivationResult, error) {
	b, err := s.Bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		return ActivationResult{}, err
	}
	if !ownsAsPartner(in.Actor, b) || (in.PartnerID != "" && in.PartnerID != b.PartnerID) {
		return ActivationResult{}, bookingUnauthorized(in.Actor, b, "only the owning partner can activate this booking")
	}
	if in.BypassRequirements && !in.Actor.IsOperator() {
		return ActivationResult{}, domain.UnauthorizedError{Resource: "booking " + b.ID, ActorID: in.Actor.ID, Msg: "only platform operators can bypass activation requirements"}
	}
	if b.Status == models.BookingActive {
		s.ensureBound(ctx, b)
		return ActivationResult{Booking: b, AlreadyActive: true}, nil
	}
	if !containsBookingStatus(domain.ActivationEligible(), b.Status) {
		return ActivationResult{}, domain.InvalidStateError{Resource: "booking", Current: string(b.Status), Operation: "activate"}
	}

	facts, err := s.Verification.ActivationFacts(ctx, b.ID)
	if err != nil {
		return ActivationResult{}, err
	}
	readiness := evaluateReadiness(b, facts)
	var bypassed []string
	if !readiness.Ready {
		if !in.BypassRequirements {
			return ActivationResult{}, domain.RequirementsNotMetError{BookingID: b.ID, Unmet: readiness.Unmet}
		}
		bypassed = readiness.Unmet
	}
	if err := s.Vehicles.EnsureBindable(ctx, b); err != nil {
		return ActivationResult{}, err
	}

	trigger := strings.TrimSpace(in.Trigger)
	if trigger == "" {
		trigger = TriggerManual
	}
	now := clock(s.Now)
	active, err := domain.Next(b.Status, domain.ActionActivate)
	if err != nil {
		return ActivationResult{}, err
	}
	patch := models.BookingPatch{
		Status: &active,
		Activation: &models.Activation{
			At:                   now,
			By:                   in.Actor.ID,
			ByType:               string(in.Actor.Type),
			Trigger:              trigger,
			RequirementsBypassed: in.BypassRequirements,
		},
		UpdatedAt: now,
	}
	ok, err := s.Bookings.UpdateIf(ctx, b.ID, models.BookingCondition{Statuses: domain.ActivationEligible()}, patch)
	if err != nil {
		return ActivationResult{}, err
	}
	if !ok {
		fresh, err := s.Bookings.GetByID(ctx, b.ID)
		if err != nil {
			return ActivationResult{}, err
		}
		if fresh.Status == models.BookingActive {
			return ActivationResult{Booking: fresh, AlreadyActive: true}, nil
		}
		return ActivationResult{}, domain.InvalidStateError{Resource: "booking", Current: string(fresh.Status), Operation: "activate"}
	}
	patch.Apply(&b)
	s.ensureBound(ctx, b)

	desc := "Booking activated; all activation requirements met"
	if in.BypassRequirements {
		desc = "Booking activated with requirements bypassed by operator"
		if len(bypassed) > 0 {
			desc += ": " + strings.Join(bypassed, ", ")
		}
	}
	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionBookingActivated,
		PerformedBy:     in.Actor.ID,
		PerformedByType: string(in.Actor.Type),
		Details: map[string]any{
			"bypass_requirements":   in.BypassRequirements,
			"trigger":               trigger,
			"bypassed_requirements": bypassed,
			"vehicle_id":            b.VehicleID,
		},
		Description: desc,
	})
	s.Fanout.Emit(ctx, b, in.Actor, Message{
		Type:  models.NotifyBookingActivated,
		Title: "Booking active",
		Body:  "Your booking is active and the vehicle is ready for collection.",
		RoleBody: map[Role]string{
			RoleOperator: fmt.Sprintf("Booking %s activated (trigger %s).", utils.ShortID(b.ID, 8), trigger),
		},
		Data:         map[string]any{"vehicle_id": b.VehicleID, "bypass_requirements": in.BypassRequirements},
		Priority:     models.PriorityHigh,
		RolePriority: map[Role]models.Priority{RoleOperator: models.PriorityLow},
	})

	utils.LogEvent(ctx, "booking", "activate", "booking activated",
		zap.String("booking_id", b.ID), zap.Bool("bypass", in.BypassRequirements), zap.Strings("bypassed", bypassed))
	return ActivationResult{Booking: b, BypassedRequirements: bypassed}, nil
}

// ensureBound binds the vehicle after activation; the booking stays active if it fails.
func (s BookingService) ensureBound(ctx context.Context, b models.Booking) {
	if err := s.Vehicles.Bind(ctx, b); err != nil {
		utils.LogWarn(ctx, "booking", "activate", "booking active but vehicle bind failed", err,
			zap.String("booking_id", b.ID), zap.String("vehicle_id", b.VehicleID))
	}
}

// Accept records the partner's approval. Insurance still outstanding routes to pending_insurance_upload.
func (s BookingService) Accept(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !ownsAsPartner(actor, b) {
		return models.Booking{}, bookingUnauthorized(actor, b, "only the owning partner can accept this booking")
	}
	if !domain.Allows(b.Status, domain.ActionAccept) {
		return models.Booking{}, domain.InvalidStateError{Resource: "booking", Current: string(b.Status), Operation: "accept"}
	}
	facts, err := s.Verification.ActivationFacts(ctx, b.ID)
	if err != nil {
		return models.Booking{}, err
	}
	action := domain.ActionAccept
	if !facts.InsuranceSatisfied() {
		action = domain.ActionAcceptPendingInsurance
	}
	b, err = s.transition(ctx, b, action, models.BookingPatch{})
	if err != nil {
		return models.Booking{}, err
	}

	desc := "Partner accepted the booking"
	if b.Status == models.BookingPendingInsuranceUpload {
		desc += "; waiting for insurance upload"
	}
	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionBookingAccepted,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         map[string]any{"status": string(b.Status)},
		Description:     desc,
	})
	body := "Your booking was accepted by the partner."
	if b.Status == models.BookingPendingInsuranceUpload {
		body += " Please upload your insurance certificate."
	}
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     models.NotifyBookingAccepted,
		Title:    "Booking accepted",
		Body:     body,
		Data:     map[string]any{"status": string(b.Status)},
		Priority: models.PriorityHigh,
	})
	return b, nil
}

// MarkInsuranceUploaded records a valid certificate and returns the booking to partner_accepted.
func (s BookingService) MarkInsuranceUploaded(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !participates(actor, b) {
		return models.Booking{}, bookingUnauthorized(actor, b, "not a party to this booking")
	}
	if !domain.Allows(b.Status, domain.ActionInsuranceUploaded) {
		return models.Booking{}, domain.InvalidStateError{Resource: "booking", Current: string(b.Status), Operation: "record insurance for"}
	}
	if s.Insurance != nil {
		if err := s.Insurance.MarkInsuranceUploaded(ctx, b.ID); err != nil {
			return models.Booking{}, err
		}
	}
	b, err = s.transition(ctx, b, domain.ActionInsuranceUploaded, models.BookingPatch{})
	if err != nil {
		return models.Booking{}, err
	}
	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionInsuranceUploaded,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Description:     "Insurance certificate uploaded",
	})
	return b, nil
}

// Complete ends an active rental and frees its vehicle.
func (s BookingService) Complete(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !ownsAsPartner(actor, b) {
		return models.Booking{}, bookingUnauthorized(actor, b, "only the owning partner can complete this booking")
	}
	now := clock(s.Now)
	return s.terminate(ctx, b, actor, domain.ActionComplete, models.BookingPatch{CompletedAt: &now}, "")
}

// Cancel terminates a booking from any non-terminal status and frees its vehicle.
func (s BookingService) Cancel(ctx context.Context, bookingID string, actor domain.Actor, reason string) (models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !participates(actor, b) {
		return models.Booking{}, bookingUnauthorized(actor, b, "not a party to this booking")
	}
	if domain.Terminal(b.Status) {
		return models.Booking{}, domain.AlreadyInTerminalStateError{Resource: "booking", ID: b.ID, State: string(b.Status)}
	}
	now := clock(s.Now)
	reason = strings.TrimSpace(reason)
	return s.terminate(ctx, b, actor, domain.ActionCancel, models.BookingPatch{CancelledAt: &now, CancellationReason: &reason}, reason)
}

func (s BookingService) terminate(ctx context.Context, b models.Booking, actor domain.Actor, action domain.Action, patch models.BookingPatch, reason string) (models.Booking, error) {
	if !domain.Allows(b.Status, action) {
		return models.Booking{}, domain.InvalidStateError{Resource: "booking", Current: string(b.Status), Operation: string(action)}
	}
	now := clock(s.Now)
	vehicleID := b.VehicleID
	var rel models.VehicleRelease
	if vehicleID != "" {
		rel = models.VehicleRelease{At: now, By: actor.ID, ByType: string(actor.Type), Reason: string(action)}
		patch.ClearVehicle = true
		patch.Release = &rel
	}
	b, err := s.transition(ctx, b, action, patch)
	if err != nil {
		return models.Booking{}, err
	}
	if vehicleID != "" {
		s.Vehicles.freeVehicle(ctx, vehicleID, b.ID, rel)
	}

	histAction, notifyType, title := models.ActionBookingCompleted, models.NotifyBookingCompleted, "Booking completed"
	if action == domain.ActionCancel {
		histAction, notifyType, title = models.ActionBookingCancelled, models.NotifyBookingCancelled, "Booking cancelled"
	}
	details := map[string]any{"vehicle_id": vehicleID}
	desc := title
	if reason != "" {
		details["reason"] = reason
		desc += ": " + reason
	}
	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          histAction,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         details,
		Description:     desc,
	})
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     notifyType,
		Title:    title,
		Body:     fmt.Sprintf("%s (booking %s).", title, utils.ShortID(b.ID, 8)),
		Data:     details,
		Priority: models.PriorityNormal,
	})
	utils.LogEvent(ctx, "booking", string(action), strings.ToLower(title), zap.String("booking_id", b.ID))
	return b, nil
}

// transition applies action via a conditional update guarded by every status that allows it.
func (s BookingService) transition(ctx context.Context, b models.Booking, action domain.Action, patch models.BookingPatch) (models.Booking, error) {
	to, err := domain.Next(b.Status, action)
	if err != nil {
		return models.Booking{}, err
	}
	patch.Status = &to
	patch.UpdatedAt = clock(s.Now)
	cond := models.BookingCondition{Statuses: domain.StatusesAllowing(action)}
	if patch.ClearVehicle {
		cond.VehicleID = b.VehicleID
	}
	ok, err := s.Bookings.UpdateIf(ctx, b.ID, cond, patch)
	if err != nil {
		return models.Booking{}, err
	}
	if !ok {
		fresh, err := s.Bookings.GetByID(ctx, b.ID)
		if err != nil {
			return models.Booking{}, err
		}
		return models.Booking{}, domain.InvalidStateError{Resource: "booking", Current: string(fresh.Status), Operation: string(action)}
	}
	patch.Apply(&b)
	return b, nil
}

// Get returns the booking with its issues.
func (s BookingService) Get(ctx context.Context, bookingID string, actor domain.Actor) (models.Booking, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !participates(actor, b) {
		return models.Booking{}, bookingUnauthorized(actor, b, "not a party to this booking")
	}
	if s.Issues != nil {
		issues, err := s.Issues.ListByBooking(ctx, b.ID)
		if err != nil {
			return models.Booking{}, err
		}
		b.Issues = issues
	}
	return b, nil
}

// ListHistory returns the audit trail oldest first.
func (s BookingService) ListHistory(ctx context.Context, bookingID string, actor domain.Actor) ([]models.HistoryEntry, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !participates(actor, b) {
		return nil, bookingUnauthorized(actor, b, "not a party to this booking")
	}
	return s.History.ListByBooking(ctx, b.ID)
}
