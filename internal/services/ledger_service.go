package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentals/internal/domain"
	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultAcceptanceWindow  = 2 * time.Hour
	defaultPromotionAttempts = 3
)

// LedgerService manages payment instructions and refund bookkeeping.
type LedgerService struct {
	Bookings     BookingStore
	Instructions InstructionStore
	Transactions TransactionStore
	Vehicles     VehicleStore
	Rates        RateProvider
	Directory    PartnerDirectory
	Recorder     Recorder
	Fanout       Fanout
	Now          func() time.Time

	AcceptanceWindow  time.Duration
	PromotionAttempts int
}

type InstructionResult struct {
	Instruction   models.PaymentInstruction `json:"instruction"`
	BookingStatus models.BookingStatus      `json:"booking_status,omitempty"`
}

type MarkSentResult struct {
	Instruction   models.PaymentInstruction `json:"instruction"`
	BookingStatus models.BookingStatus      `json:"booking_status"`
	Promoted      bool                      `json:"promoted"`
	// PromotionPending means the booking promotion was handed to the outbox worker.
	PromotionPending bool `json:"promotion_pending"`
}

type ConfirmResult struct {
	Instruction      models.PaymentInstruction `json:"instruction"`
	AlreadyConfirmed bool                      `json:"already_confirmed"`
	AlsoConfirmed    int64                     `json:"also_confirmed"`
}

// CreateWeeklyInstruction opens the booking's weekly rent obligation.
func (s LedgerService) CreateWeeklyInstruction(ctx context.Context, bookingID string, method models.PaymentMethod, actor domain.Actor) (InstructionResult, error) {
	if !method.Valid() {
		return InstructionResult{}, domain.ValidationError{Field: "method", Msg: "must be bank_transfer or direct_debit"}
	}
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return InstructionResult{}, err
	}
	if !participates(actor, b) {
		return InstructionResult{}, bookingUnauthorized(actor, b, "only the booking's driver, partner or an operator can set up payments")
	}
	if domain.Terminal(b.Status) {
		return InstructionResult{}, domain.InvalidStateError{Resource: "booking", Current: string(b.Status), Operation: "create payment instruction for"}
	}
	existing, err := s.Instructions.FindActiveWeekly(ctx, b.ID)
	if err != nil {
		return InstructionResult{}, err
	}
	if existing != nil {
		return InstructionResult{}, domain.ConflictError{Resource: "payment instruction", Msg: "booking already has a weekly instruction " + existing.ID}
	}

	var vehicle *models.Vehicle
	if b.HasVehicle() {
		v, err := s.Vehicles.GetByID(ctx, b.VehicleID)
		if err != nil {
			utils.LogWarn(ctx, "ledger", "create_weekly", "vehicle lookup failed, registration unknown", err,
				zap.String("booking_id", b.ID), zap.String("vehicle_id", b.VehicleID))
		} else {
			vehicle = &v
		}
	}
	rates := s.Rates
	if rates == nil {
		rates = DefaultRateProvider{}
	}
	amount, err := rates.WeeklyRate(ctx, b, vehicle)
	if err != nil {
		return InstructionResult{}, err
	}

	var bank models.BankDetails
	if s.Directory != nil {
		bank, err = s.Directory.BankDetails(ctx, b.PartnerID)
		if err != nil {
			utils.LogWarn(ctx, "ledger", "create_weekly", "bank details lookup failed", err, zap.String("partner_id", b.PartnerID))
			bank = models.BankDetails{}
		}
	}
	if method == models.MethodBankTransfer && bank.Empty() {
		utils.LogWarn(ctx, "ledger", "create_weekly", "partner has no bank details on file", nil, zap.String("partner_id", b.PartnerID))
	}

	registration := models.UnknownRegistration
	if vehicle != nil {
		registration = vehicle.RegistrationString()
	}

	now := clock(s.Now)
	due := utils.StartOfDay(now)
	if b.StartDate.After(due) {
		due = b.StartDate.UTC()
	}
	status := models.InstructionPending
	paymentStatus := models.PaymentStatusPending
	if method == models.MethodDirectDebit {
		status = models.InstructionAuto
		paymentStatus = models.PaymentStatusAuto
	}
	in := models.PaymentInstruction{
		ID:                  uuid.NewString(),
		BookingID:           b.ID,
		DriverID:            b.DriverID,
		PartnerID:           b.PartnerID,
		Method:              method,
		Frequency:           models.FrequencyWeekly,
		Type:                models.InstructionWeeklyRent,
		Amount:              amount,
		Status:              status,
		VehicleRegistration: registration,
		Reference:           paymentReference(b.ID, registration),
		Bank:                bank,
		NextDueDate:         &due,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.Instructions.Create(ctx, in); err != nil {
		return InstructionResult{}, err
	}

	patch := models.BookingPatch{PaymentMethod: &method, PaymentStatus: &paymentStatus, UpdatedAt: now}
	cond := models.BookingCondition{Statuses: nonTerminalStatuses()}
	if ok, err := s.Bookings.UpdateIf(ctx, b.ID, cond, patch); err != nil || !ok {
		utils.LogWarn(ctx, "ledger", "create_weekly", "booking payment fields not updated", err,
			zap.String("booking_id", b.ID), zap.String("instruction_id", in.ID))
	} else {
		patch.Apply(&b)
	}

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionInstructionCreated,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details: map[string]any{
			"instruction_id": in.ID,
			"method":         string(method),
			"amount":         in.Amount,
			"reference":      in.Reference,
		},
		Description: fmt.Sprintf("Weekly %s instruction of %s created", strings.ReplaceAll(string(method), "_", " "), utils.FormatPounds(in.Amount)),
	})
	data := map[string]any{"instruction_id": in.ID, "amount": in.Amount, "reference": in.Reference, "method": string(method)}
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     models.NotifyPaymentInstructions,
		Title:    "Payment instructions",
		Body:     driverPaymentText(in),
		Data:     data,
		Priority: models.PriorityHigh,
	})
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     models.NotifyNewPaymentChannel,
		Title:    "New payment channel",
		Body:     fmt.Sprintf("A weekly %s of %s was set up for vehicle %s.", strings.ReplaceAll(string(method), "_", " "), utils.FormatPounds(in.Amount), registration),
		Data:     data,
		Priority: models.PriorityNormal,
	})

	utils.LogEvent(ctx, "ledger", "create_weekly", "instruction created",
		zap.String("booking_id", b.ID), zap.String("instruction_id", in.ID), zap.String("method", string(method)))
	return InstructionResult{Instruction: in, BookingStatus: b.Status}, nil
}

func paymentReference(bookingID, registration string) string {
	ref := "RENT-" + utils.ShortID(bookingID, 8)
	if registration != "" && registration != models.UnknownRegistration {
		ref += "-" + strings.ReplaceAll(registration, " ", "")
	}
	return ref
}

func driverPaymentText(in models.PaymentInstruction) string {
	if in.Method == models.MethodDirectDebit {
		return fmt.Sprintf("Your weekly rent of %s for %s will be collected automatically by direct debit.",
			utils.FormatPounds(in.Amount), in.VehicleRegistration)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Please pay %s weekly for %s by bank transfer.", utils.FormatPounds(in.Amount), in.VehicleRegistration)
	if !in.Bank.Empty() {
		fmt.Fprintf(&sb, " Account name: %s. Sort code: %s. Account number: %s.", in.Bank.AccountName, in.Bank.SortCode, in.Bank.AccountNumber)
	} else {
		sb.WriteString(" Your partner will share their bank details shortly.")
	}
	fmt.Fprintf(&sb, " Reference: %s.", in.Reference)
	return sb.String()
}

func nonTerminalStatuses() []models.BookingStatus {
	out := []models.BookingStatus{}
	for _, st := range domain.AllStatuses {
		if !domain.Terminal(st) {
			out = append(out, st)
		}
	}
	return out
}

var sendableStatuses = []models.InstructionStatus{models.InstructionPending, models.InstructionDepositPending}

// MarkSent records that the driver paid by bank transfer. The first payment on a
// booking still in pending_payment promotes it to partner approval.
func (s LedgerService) MarkSent(ctx context.Context, instructionID string, actor domain.Actor) (MarkSentResult, error) {
	in, err := s.Instructions.GetByID(ctx, instructionID)
	if err != nil {
		return MarkSentResult{}, err
	}
	if err := sendPrecondition(in, actor); err != nil {
		return MarkSentResult{}, err
	}

	now := clock(s.Now)
	sent := models.InstructionSent
	patch := models.InstructionPatch{Status: &sent, LastSentAt: &now, UpdatedAt: now}
	cond := models.InstructionCondition{Statuses: sendableStatuses, Method: models.MethodBankTransfer}
	ok, err := s.Instructions.UpdateIf(ctx, in.ID, cond, patch)
	if err != nil {
		return MarkSentResult{}, err
	}
	if !ok {
		fresh, err := s.Instructions.GetByID(ctx, in.ID)
		if err != nil {
			return MarkSentResult{}, err
		}
		if err := sendPrecondition(fresh, actor); err != nil {
			return MarkSentResult{}, err
		}
		return MarkSentResult{}, domain.ConflictError{Resource: "payment instruction", Msg: "instruction changed concurrently, retry"}
	}
	patch.Apply(&in)

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       in.BookingID,
		Action:          models.ActionPaymentSent,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         map[string]any{"instruction_id": in.ID, "amount": in.Amount},
		Description:     fmt.Sprintf("Driver marked %s as sent", utils.FormatPounds(in.Amount)),
	})

	res := MarkSentResult{Instruction: in}
	deadline := now.Add(s.acceptanceWindow())
	b, promoted, err := s.promoteWithRetry(ctx, in.BookingID, deadline)
	if domain.IsNotFound(err) {
		utils.LogWarn(ctx, "ledger", "mark_sent", "instruction references a missing booking", err,
			zap.String("booking_id", in.BookingID), zap.String("instruction_id", in.ID))
		return res, nil
	}
	if err != nil {
		utils.LogWarn(ctx, "ledger", "mark_sent", "booking promotion deferred to outbox", err,
			zap.String("booking_id", in.BookingID), zap.String("instruction_id", in.ID))
		s.Recorder.Promotion(ctx, models.PromotionPayload{BookingID: in.BookingID, InstructionID: in.ID, Deadline: deadline})
		res.PromotionPending = true
		res.BookingStatus = models.BookingPendingPayment
		return res, nil
	}
	res.Promoted = promoted
	res.BookingStatus = b.Status

	if promoted {
		s.recordPromotion(ctx, b, in, actor, deadline)
	} else {
		s.Fanout.Emit(ctx, b, actor, Message{
			Type:     models.NotifyPaymentSent,
			Title:    "Payment sent",
			Body:     fmt.Sprintf("The driver marked %s as sent for %s (ref %s).", utils.FormatPounds(in.Amount), in.VehicleRegistration, in.Reference),
			Data:     map[string]any{"instruction_id": in.ID, "amount": in.Amount},
			Priority: models.PriorityNormal,
		})
	}

	utils.LogEvent(ctx, "ledger", "mark_sent", "instruction marked sent",
		zap.String("instruction_id", in.ID), zap.Bool("promoted", promoted))
	return res, nil
}

func sendPrecondition(in models.PaymentInstruction, actor domain.Actor) error {
	if in.Method != models.MethodBankTransfer {
		return domain.InvalidStateError{Resource: "payment instruction", Current: string(in.Method), Operation: "mark sent", Msg: "only bank transfer instructions can be marked as sent"}
	}
	if actor.ID == "" || actor.ID != in.DriverID {
		return domain.UnauthorizedError{Resource: "payment instruction " + in.ID, ActorID: actor.ID, OwnerID: in.DriverID, Msg: "only the paying driver can mark this instruction as sent"}
	}
	switch {
	case in.Status == models.InstructionSent:
		return domain.ConflictError{Resource: "payment instruction", Msg: "already sent"}
	case in.Status.Terminal():
		return domain.AlreadyInTerminalStateError{Resource: "payment instruction", ID: in.ID, State: string(in.Status)}
	case in.Status != models.InstructionPending && in.Status != models.InstructionDepositPending:
		return domain.InvalidStateError{Resource: "payment instruction", Current: string(in.Status), Operation: "mark sent"}
	}
	return nil
}

func (s LedgerService) acceptanceWindow() time.Duration {
	if s.AcceptanceWindow > 0 {
		return s.AcceptanceWindow
	}
	return defaultAcceptanceWindow
}

// promoteWithRetry runs the promotion step inline a few times before giving up.
func (s LedgerService) promoteWithRetry(ctx context.Context, bookingID string, deadline time.Time) (models.Booking, bool, error) {
	attempts := s.PromotionAttempts
	if attempts <= 0 {
		attempts = defaultPromotionAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		b, promoted, err := s.promote(ctx, bookingID, deadline)
		if err == nil {
			return b, promoted, nil
		}
		if domain.IsNotFound(err) {
			return models.Booking{}, false, err
		}
		lastErr = err
	}
	return models.Booking{}, false, lastErr
}

// promote moves a pending_payment booking to pending_partner_approval. It is idempotent:
// a booking that already left pending_payment is returned unchanged with promoted=false.
func (s LedgerService) promote(ctx context.Context, bookingID string, deadline time.Time) (models.Booking, bool, error) {
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return models.Booking{}, false, err
	}
	if b.Status != models.BookingPendingPayment {
		return b, false, nil
	}
	to, err := domain.Next(b.Status, domain.ActionPromoteOnPayment)
	if err != nil {
		return b, false, err
	}
	sent := models.PaymentStatusSent
	patch := models.BookingPatch{
		Status:                    &to,
		PaymentStatus:             &sent,
		PartnerAcceptanceDeadline: &deadline,
		UpdatedAt:                 clock(s.Now),
	}
	ok, err := s.Bookings.UpdateIf(ctx, b.ID, models.BookingCondition{Statuses: domain.StatusesAllowing(domain.ActionPromoteOnPayment)}, patch)
	if err != nil {
		return b, false, err
	}
	if !ok {
		fresh, err := s.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return b, false, err
		}
		if fresh.Status == models.BookingPendingPayment {
			return fresh, false, errors.New("booking promotion did not apply")
		}
		return fresh, false, nil
	}
	patch.Apply(&b)
	return b, true, nil
}

func (s LedgerService) recordPromotion(ctx context.Context, b models.Booking, in models.PaymentInstruction, actor domain.Actor, deadline time.Time) {
	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionBookingPromoted,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details: map[string]any{
			"instruction_id":              in.ID,
			"partner_acceptance_deadline": deadline.Format(time.RFC3339),
		},
		Description: "Payment sent; booking awaiting partner approval until " + utils.FormatDateTime(deadline),
	})
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:  models.NotifyNewBooking,
		Title: "New booking awaiting approval",
		Body: fmt.Sprintf("A driver has paid %s for %s. Please accept the booking by %s.",
			utils.FormatPounds(in.Amount), in.VehicleRegistration, utils.FormatDateTime(deadline)),
		Data:     map[string]any{"instruction_id": in.ID, "amount": in.Amount, "deadline": deadline.Format(time.RFC3339)},
		Priority: models.PriorityHigh,
	})
}

// PromoteBooking is the outbox step for a promotion that failed inline.
func (s LedgerService) PromoteBooking(ctx context.Context, p models.PromotionPayload) error {
	b, promoted, err := s.promote(ctx, p.BookingID, p.Deadline)
	if err != nil {
		return err
	}
	if !promoted {
		return nil
	}
	in, err := s.Instructions.GetByID(ctx, p.InstructionID)
	if err != nil {
		utils.LogWarn(ctx, "ledger", "promote", "instruction lookup failed after promotion", err, zap.String("booking_id", b.ID))
		in = models.PaymentInstruction{ID: p.InstructionID, BookingID: b.ID}
	}
	s.recordPromotion(ctx, b, in, domain.Actor{ID: b.DriverID, Type: domain.ActorDriver}, p.Deadline)
	return nil
}

var confirmableStatuses = []models.InstructionStatus{models.InstructionPending, models.InstructionSent}

// ConfirmBankTransfer records receipt of a bank transfer by the partner.
// Confirming an already received instruction succeeds without new effects.
func (s LedgerService) ConfirmBankTransfer(ctx context.Context, bookingID, instructionID string, actor domain.Actor) (ConfirmResult, error) {
	in, err := s.Instructions.GetByID(ctx, instructionID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if in.BookingID != bookingID {
		return ConfirmResult{}, domain.NotFoundError{Resource: "payment instruction", ID: instructionID}
	}
	b, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !ownsAsPartner(actor, b) {
		return ConfirmResult{}, bookingUnauthorized(actor, b, "only the booking's partner can confirm a transfer")
	}
	if in.Method != models.MethodBankTransfer {
		return ConfirmResult{}, domain.InvalidStateError{Resource: "payment instruction", Current: string(in.Method), Operation: "confirm transfer", Msg: "only bank transfer instructions can be confirmed"}
	}

	now := clock(s.Now)
	switch {
	case in.Status == models.InstructionReceived || in.Status == models.InstructionConfirmed:
		if err := s.confirmBookingPayment(ctx, b, now); err != nil {
			return ConfirmResult{}, err
		}
		return ConfirmResult{Instruction: in, AlreadyConfirmed: true}, nil
	case in.Status.Terminal():
		return ConfirmResult{}, domain.AlreadyInTerminalStateError{Resource: "payment instruction", ID: in.ID, State: string(in.Status)}
	case in.Status != models.InstructionPending && in.Status != models.InstructionSent:
		return ConfirmResult{}, domain.InvalidStateError{Resource: "payment instruction", Current: string(in.Status), Operation: "confirm transfer"}
	}

	received := models.InstructionReceived
	by := actor.ID
	patch := models.InstructionPatch{Status: &received, ConfirmedAt: &now, ConfirmedBy: &by, UpdatedAt: now}
	ok, err := s.Instructions.UpdateIf(ctx, in.ID, models.InstructionCondition{Statuses: confirmableStatuses, Method: models.MethodBankTransfer}, patch)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !ok {
		fresh, err := s.Instructions.GetByID(ctx, in.ID)
		if err != nil {
			return ConfirmResult{}, err
		}
		if fresh.Status == models.InstructionReceived || fresh.Status == models.InstructionConfirmed {
			return ConfirmResult{Instruction: fresh, AlreadyConfirmed: true}, nil
		}
		return ConfirmResult{}, domain.InvalidStateError{Resource: "payment instruction", Current: string(fresh.Status), Operation: "confirm transfer"}
	}
	patch.Apply(&in)

	also, err := s.Instructions.MarkPendingReceived(ctx, b.ID, in.ID, actor.ID, now)
	if err != nil {
		utils.LogWarn(ctx, "ledger", "confirm", "bulk confirm of other pending instructions failed", err, zap.String("booking_id", b.ID))
		also = 0
	}
	if err := s.confirmBookingPayment(ctx, b, now); err != nil {
		return ConfirmResult{}, err
	}

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       b.ID,
		Action:          models.ActionPaymentConfirmed,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         map[string]any{"instruction_id": in.ID, "amount": in.Amount, "also_confirmed": also},
		Description:     fmt.Sprintf("Bank transfer of %s confirmed as received", utils.FormatPounds(in.Amount)),
	})
	s.Fanout.Emit(ctx, b, actor, Message{
		Type:     models.NotifyPaymentConfirmed,
		Title:    "Payment confirmed",
		Body:     fmt.Sprintf("Your payment of %s (ref %s) has been received.", utils.FormatPounds(in.Amount), in.Reference),
		Data:     map[string]any{"instruction_id": in.ID, "amount": in.Amount},
		Priority: models.PriorityNormal,
	})

	utils.LogEvent(ctx, "ledger", "confirm", "bank transfer confirmed",
		zap.String("instruction_id", in.ID), zap.Int64("also_confirmed", also))
	return ConfirmResult{Instruction: in, AlsoConfirmed: also}, nil
}

func (s LedgerService) confirmBookingPayment(ctx context.Context, b models.Booking, now time.Time) error {
	if b.PaymentStatus == models.PaymentStatusConfirmed {
		return nil
	}
	confirmed := models.PaymentStatusConfirmed
	cond := models.BookingCondition{Statuses: nonTerminalStatuses()}
	if _, err := s.Bookings.UpdateIf(ctx, b.ID, cond, models.BookingPatch{PaymentStatus: &confirmed, UpdatedAt: now}); err != nil {
		return err
	}
	return nil
}

// RefundDeposit returns a held deposit to the driver. The amount is not checked against the deposit.
func (s LedgerService) RefundDeposit(ctx context.Context, instructionID string, amount float64, actor domain.Actor) (InstructionResult, error) {
	if amount <= 0 {
		return InstructionResult{}, domain.ValidationError{Field: "amount", Msg: "must be greater than zero"}
	}
	amount = utils.RoundMoney(amount)

	in, err := s.Instructions.GetByID(ctx, instructionID)
	if err != nil {
		return InstructionResult{}, err
	}
	if actor.ID == "" || actor.ID != in.PartnerID {
		return InstructionResult{}, domain.UnauthorizedError{Resource: "payment instruction " + in.ID, ActorID: actor.ID, OwnerID: in.PartnerID, Msg: "only the partner holding the deposit can refund it"}
	}
	if in.Type != models.InstructionDeposit {
		return InstructionResult{}, domain.InvalidStateError{Resource: "payment instruction", Current: string(in.Type), Operation: "refund", Msg: "only deposit instructions can be refunded"}
	}
	if in.Status.Terminal() {
		return InstructionResult{}, domain.AlreadyInTerminalStateError{Resource: "payment instruction", ID: in.ID, State: string(in.Status)}
	}

	now := clock(s.Now)
	exists, err := s.Transactions.HasRefundFor(ctx, in.ID)
	if err != nil {
		return InstructionResult{}, err
	}
	if !exists {
		desc := "Deposit refund " + utils.ShortID(in.ID, 8)
		expense := models.Transaction{
			ID: uuid.NewString(), InstructionID: in.ID, BookingID: in.BookingID,
			UserID: in.PartnerID, UserType: string(domain.ActorPartner),
			Kind: models.TransactionExpense, Category: models.CategoryDepositRefund,
			Amount: amount, Description: desc, CreatedAt: now,
		}
		income := models.Transaction{
			ID: uuid.NewString(), InstructionID: in.ID, BookingID: in.BookingID,
			UserID: in.DriverID, UserType: string(domain.ActorDriver),
			Kind: models.TransactionIncome, Category: models.CategoryDepositRefund,
			Amount: amount, Description: desc, CreatedAt: now,
		}
		if err := s.Transactions.CreateRefundPair(ctx, expense, income); err != nil {
			return InstructionResult{}, err
		}
	}

	refunded := models.InstructionDepositRefunded
	patch := models.InstructionPatch{Status: &refunded, RefundedAmount: &amount, RefundedAt: &now, UpdatedAt: now}
	ok, err := s.Instructions.UpdateIf(ctx, in.ID, models.InstructionCondition{NotStatuses: terminalInstructionStatuses}, patch)
	if err != nil {
		return InstructionResult{}, err
	}
	if !ok {
		fresh, err := s.Instructions.GetByID(ctx, in.ID)
		if err != nil {
			return InstructionResult{}, err
		}
		return InstructionResult{}, domain.AlreadyInTerminalStateError{Resource: "payment instruction", ID: fresh.ID, State: string(fresh.Status)}
	}
	patch.Apply(&in)

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       in.BookingID,
		Action:          models.ActionDepositRefunded,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         map[string]any{"instruction_id": in.ID, "refunded_amount": amount, "deposit_amount": in.Amount},
		Description:     fmt.Sprintf("Deposit refunded: %s", utils.FormatPounds(amount)),
	})
	s.notifyDriver(ctx, in, actor, Message{
		Type:     models.NotifyDepositRefunded,
		Title:    "Deposit refunded",
		Body:     fmt.Sprintf("Your partner has refunded %s of your deposit.", utils.FormatPounds(amount)),
		Data:     map[string]any{"instruction_id": in.ID, "amount": amount},
		Priority: models.PriorityNormal,
	})

	utils.LogEvent(ctx, "ledger", "refund", "deposit refunded",
		zap.String("instruction_id", in.ID), zap.Float64("amount", amount), zap.Bool("transactions_existed", exists))
	return InstructionResult{Instruction: in}, nil
}

var terminalInstructionStatuses = []models.InstructionStatus{models.InstructionDepositRefunded, models.InstructionRefundRejected}

var rejectableStatuses = []models.InstructionStatus{models.InstructionPending, models.InstructionDepositRefundPending, models.InstructionSent}

// RejectRefund closes a refund request with the partner's reason.
func (s LedgerService) RejectRefund(ctx context.Context, instructionID, reason string, actor domain.Actor) (InstructionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return InstructionResult{}, domain.ValidationError{Field: "reason", Msg: "is required"}
	}
	in, err := s.Instructions.GetByID(ctx, instructionID)
	if err != nil {
		return InstructionResult{}, err
	}
	if actor.ID == "" || actor.ID != in.PartnerID {
		return InstructionResult{}, domain.UnauthorizedError{Resource: "payment instruction " + in.ID, ActorID: actor.ID, OwnerID: in.PartnerID, Msg: "only the instruction's partner can reject a refund"}
	}
	if in.Status.Terminal() {
		return InstructionResult{}, domain.AlreadyInTerminalStateError{Resource: "payment instruction", ID: in.ID, State: string(in.Status)}
	}
	if !(models.InstructionCondition{Statuses: rejectableStatuses}).Matches(in) {
		return InstructionResult{}, domain.InvalidStateError{Resource: "payment instruction", Current: string(in.Status), Operation: "reject refund for"}
	}

	now := clock(s.Now)
	rejected := models.InstructionRefundRejected
	patch := models.InstructionPatch{Status: &rejected, RefundRejectionReason: &reason, RefundRejectedAt: &now, UpdatedAt: now}
	ok, err := s.Instructions.UpdateIf(ctx, in.ID, models.InstructionCondition{Statuses: rejectableStatuses}, patch)
	if err != nil {
		return InstructionResult{}, err
	}
	if !ok {
		fresh, err := s.Instructions.GetByID(ctx, in.ID)
		if err != nil {
			return InstructionResult{}, err
		}
		if fresh.Status.Terminal() {
			return InstructionResult{}, domain.AlreadyInTerminalStateError{Resource: "payment instruction", ID: fresh.ID, State: string(fresh.Status)}
		}
		return InstructionResult{}, domain.InvalidStateError{Resource: "payment instruction", Current: string(fresh.Status), Operation: "reject refund for"}
	}
	patch.Apply(&in)

	s.Recorder.History(ctx, models.HistoryEntry{
		BookingID:       in.BookingID,
		Action:          models.ActionRefundRejected,
		PerformedBy:     actor.ID,
		PerformedByType: string(actor.Type),
		Details:         map[string]any{"instruction_id": in.ID, "reason": reason},
		Description:     "Refund rejected: " + reason,
	})
	s.notifyDriver(ctx, in, actor, Message{
		Type:     models.NotifyRefundRejected,
		Title:    "Refund rejected",
		Body:     "Your refund was rejected by the partner. Reason: " + reason,
		Data:     map[string]any{"instruction_id": in.ID, "reason": reason},
		Priority: models.PriorityHigh,
	})

	utils.LogEvent(ctx, "ledger", "reject_refund", "refund rejected", zap.String("instruction_id", in.ID))
	return InstructionResult{Instruction: in}, nil
}

// notifyDriver fans out using the instruction's parties when the booking row is not needed.
func (s LedgerService) notifyDriver(ctx context.Context, in models.PaymentInstruction, actor domain.Actor, msg Message) {
	b := models.Booking{ID: in.BookingID, DriverID: in.DriverID, PartnerID: in.PartnerID}
	s.Fanout.Emit(ctx, b, actor, msg)
}
