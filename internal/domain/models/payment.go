package models

import "time"

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodDirectDebit  PaymentMethod = "direct_debit"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodBankTransfer || m == MethodDirectDebit
}

type PaymentFrequency string

const (
	FrequencyWeekly PaymentFrequency = "weekly"
	FrequencyOneOff PaymentFrequency = "one_off"
)

type InstructionType string

const (
	InstructionWeeklyRent InstructionType = "weekly_rent"
	InstructionDeposit    InstructionType = "deposit"
	InstructionAdjustment InstructionType = "adjustment"
	InstructionTopUp      InstructionType = "top_up"
	InstructionRefund     InstructionType = "refund"
)

type InstructionStatus string

const (
	InstructionPending              InstructionStatus = "pending"
	InstructionSent                 InstructionStatus = "sent"
	InstructionReceived             InstructionStatus = "received"
	InstructionConfirmed            InstructionStatus = "confirmed"
	InstructionAuto                 InstructionStatus = "auto"
	InstructionDepositPending       InstructionStatus = "deposit_pending"
	InstructionDepositRefundPending InstructionStatus = "deposit_refund_pending"
	InstructionDepositRefunded      InstructionStatus = "deposit_refunded"
	InstructionRefundRejected       InstructionStatus = "refund_rejected"
)

// Terminal statuses never regress; a new instruction is required instead.
func (s InstructionStatus) Terminal() bool {
	return s == InstructionDepositRefunded || s == InstructionRefundRejected
}

// UnknownRegistration is used when no registration string can be resolved.
const UnknownRegistration = "UNKNOWN"

// BankDetails is the partner's payee account snapshot.
type BankDetails struct {
	AccountName   string `json:"account_name"`
	SortCode      string `json:"sort_code"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name,omitempty"`
}

func (b BankDetails) Empty() bool {
	return b.AccountNumber == "" && b.SortCode == ""
}

// PaymentInstruction is a tracked obligation for a driver to pay a partner.
type PaymentInstruction struct {
	ID        string `json:"id"`
	BookingID string `json:"booking_id"`
	DriverID  string `json:"driver_id"`
	PartnerID string `json:"partner_id"`

	Method    PaymentMethod     `json:"method"`
	Frequency PaymentFrequency  `json:"frequency"`
	Type      InstructionType   `json:"type"`
	Amount    float64           `json:"amount"`
	Status    InstructionStatus `json:"status"`

	VehicleRegistration string      `json:"vehicle_registration"`
	Reference           string      `json:"reference"`
	Bank                BankDetails `json:"bank"`

	NextDueDate *time.Time `json:"next_due_date,omitempty"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy string     `json:"confirmed_by,omitempty"`

	RefundedAmount        *float64   `json:"refunded_amount,omitempty"`
	RefundedAt            *time.Time `json:"refunded_at,omitempty"`
	RefundRejectionReason *string    `json:"refund_rejection_reason,omitempty"`
	RefundRejectedAt      *time.Time `json:"refund_rejected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstructionCondition guards a conditional instruction update.
type InstructionCondition struct {
	Statuses    []InstructionStatus
	NotStatuses []InstructionStatus
	Method      PaymentMethod
}

func (c InstructionCondition) Matches(in PaymentInstruction) bool {
	if len(c.Statuses) > 0 && !containsStatus(c.Statuses, in.Status) {
		return false
	}
	if len(c.NotStatuses) > 0 && containsStatus(c.NotStatuses, in.Status) {
		return false
	}
	if c.Method != "" && in.Method != c.Method {
		return false
	}
	return true
}

func containsStatus(list []InstructionStatus, s InstructionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// InstructionPatch is a partial update; nil fields stay untouched.
type InstructionPatch struct {
	Status                *InstructionStatus
	LastSentAt            *time.Time
	ConfirmedAt           *time.Time
	ConfirmedBy           *string
	RefundedAmount        *float64
	RefundedAt            *time.Time
	RefundRejectionReason *string
	RefundRejectedAt      *time.Time
	UpdatedAt             time.Time
}

func (p InstructionPatch) Apply(in *PaymentInstruction) {
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.LastSentAt != nil {
		t := *p.LastSentAt
		in.LastSentAt = &t
	}
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		in.ConfirmedAt = &t
	}
	if p.ConfirmedBy != nil {
		in.ConfirmedBy = *p.ConfirmedBy
	}
	if p.RefundedAmount != nil {
		v := *p.RefundedAmount
		in.RefundedAmount = &v
	}
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		in.RefundedAt = &t
	}
	if p.RefundRejectionReason != nil {
		v := *p.RefundRejectionReason
		in.RefundRejectionReason = &v
	}
	if p.RefundRejectedAt != nil {
		t := *p.RefundRejectedAt
		in.RefundRejectedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		in.UpdatedAt = p.UpdatedAt
	}
}

type TransactionKind string

const (
	TransactionIncome  TransactionKind = "income"
	TransactionExpense TransactionKind = "expense"
)

// CategoryDepositRefund tags the paired ledger rows written for a deposit refund.
const CategoryDepositRefund = "deposit_refund"

// Transaction is one side of a ledger movement.
type Transaction struct {
	ID            string          `json:"id"`
	InstructionID string          `json:"instruction_id"`
	BookingID     string          `json:"booking_id"`
	UserID        string          `json:"user_id"`
	UserType      string          `json:"user_type"`
	Kind          TransactionKind `json:"kind"`
	Category      string          `json:"category"`
	Amount        float64         `json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}
