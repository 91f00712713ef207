package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intdb "rentals/internal/db"
	"rentals/internal/domain"
	"rentals/internal/domain/models"
)

type InstructionRepository struct {
	DB *sql.DB
}

const instructionColumns = `
	id, booking_id, driver_id, partner_id,
	method, frequency, type, amount, status,
	vehicle_registration, reference,
	COALESCE(bank_account_name, ''), COALESCE(bank_sort_code, ''),
	COALESCE(bank_account_number, ''), COALESCE(bank_name, ''),
	next_due_date, last_sent_at, confirmed_at, COALESCE(confirmed_by, ''),
	refunded_amount, refunded_at, refund_rejection_reason, refund_rejected_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstruction(row rowScanner) (models.PaymentInstruction, error) {
	var (
		in                             models.PaymentInstruction
		method, frequency, typ, status string
		nextDue, lastSent, confirmedAt sql.NullTime
		refundedAt, rejectedAt         sql.NullTime
		refundedAmount                 sql.NullFloat64
		rejectionReason                sql.NullString
	)
	err := row.Scan(
		&in.ID, &in.BookingID, &in.DriverID, &in.PartnerID,
		&method, &frequency, &typ, &in.Amount, &status,
		&in.VehicleRegistration, &in.Reference,
		&in.Bank.AccountName, &in.Bank.SortCode,
		&in.Bank.AccountNumber, &in.Bank.BankName,
		&nextDue, &lastSent, &confirmedAt, &in.ConfirmedBy,
		&refundedAmount, &refundedAt, &rejectionReason, &rejectedAt,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return models.PaymentInstruction{}, err
	}
	in.Method = models.PaymentMethod(method)
	in.Frequency = models.PaymentFrequency(frequency)
	in.Type = models.InstructionType(typ)
	in.Status = models.InstructionStatus(status)
	in.NextDueDate = intdb.TimePtr(nextDue)
	in.LastSentAt = intdb.TimePtr(lastSent)
	in.ConfirmedAt = intdb.TimePtr(confirmedAt)
	if refundedAmount.Valid {
		v := refundedAmount.Float64
		in.RefundedAmount = &v
	}
	in.RefundedAt = intdb.TimePtr(refundedAt)
	in.RefundRejectionReason = intdb.StringPtr(rejectionReason)
	in.RefundRejectedAt = intdb.TimePtr(rejectedAt)
	return in, nil
}

func (r InstructionRepository) GetByID(ctx context.Context, id string) (models.PaymentInstruction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.PaymentInstruction{}, domain.ValidationError{Field: "instruction_id", Msg: "is required"}
	}
	row := conn(r.DB).QueryRowContext(ctx, `SELECT `+instructionColumns+` FROM payment_instructions WHERE id = ? LIMIT 1`, id)
	in, err := scanInstruction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PaymentInstruction{}, domain.NotFoundError{Resource: "payment instruction", ID: id, Err: err}
		}
		return models.PaymentInstruction{}, fmt.Errorf("get payment instruction %s: %w", id, err)
	}
	return in, nil
}

// FindActiveWeekly returns the weekly_rent instruction of a booking, if any.
func (r InstructionRepository) FindActiveWeekly(ctx context.Context, bookingID string) (*models.PaymentInstruction, error) {
	row := conn(r.DB).QueryRowContext(ctx, `
		SELECT `+instructionColumns+`
		FROM payment_instructions
		WHERE booking_id = ? AND type = ?
		LIMIT 1`, bookingID, string(models.InstructionWeeklyRent))
	in, err := scanInstruction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find weekly instruction for %s: %w", bookingID, err)
	}
	return &in, nil
}

func (r InstructionRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.PaymentInstruction, error) {
	rows, err := conn(r.DB).QueryContext(ctx, `
		SELECT `+instructionColumns+`
		FROM payment_instructions
		WHERE booking_id = ?
		ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list payment instructions: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentInstruction
	for rows.Next() {
		in, err := scanInstruction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Create inserts a new instruction. A second weekly_rent row for the same booking is a conflict.
func (r InstructionRepository) Create(ctx context.Context, in models.PaymentInstruction) error {
	_, err := conn(r.DB).ExecContext(ctx, `
		INSERT INTO payment_instructions (
			id, booking_id, driver_id, partner_id,
			method, frequency, type, amount, status,
			vehicle_registration, reference,
			bank_account_name, bank_sort_code, bank_account_number, bank_name,
			next_due_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.BookingID, in.DriverID, in.PartnerID,
		string(in.Method), string(in.Frequency), string(in.Type), in.Amount, string(in.Status),
		in.VehicleRegistration, in.Reference,
		intdb.NullIfEmpty(in.Bank.AccountName), intdb.NullIfEmpty(in.Bank.SortCode),
		intdb.NullIfEmpty(in.Bank.AccountNumber), intdb.NullIfEmpty(in.Bank.BankName),
		intdb.NullTime(in.NextDueDate), in.CreatedAt.UTC(), in.UpdatedAt.UTC(),
	)
	if err != nil {
		if intdb.IsDuplicateKey(err) {
			return domain.ConflictError{Resource: "payment instruction", Msg: "booking already has a weekly instruction", Err: err}
		}
		return fmt.Errorf("insert payment instruction: %w", err)
	}
	return nil
}

// UpdateIf applies patch only when the row still matches cond.
func (r InstructionRepository) UpdateIf(ctx context.Context, id string, cond models.InstructionCondition, patch models.InstructionPatch) (bool, error) {
	set := instructionSet(patch)
	if set.empty() {
		return false, fmt.Errorf("empty instruction patch")
	}

	where := []string{"id = ?"}
	args := append([]any{}, set.args...)
	args = append(args, id)
	if len(cond.Statuses) > 0 {
		where = append(where, "status IN ("+intdb.Placeholders(len(cond.Statuses))+")")
		args = append(args, intdb.Args(cond.Statuses)...)
	}
	if len(cond.NotStatuses) > 0 {
		where = append(where, "status NOT IN ("+intdb.Placeholders(len(cond.NotStatuses))+")")
		args = append(args, intdb.Args(cond.NotStatuses)...)
	}
	if cond.Method != "" {
		where = append(where, "method = ?")
		args = append(args, string(cond.Method))
	}

	query := `UPDATE payment_instructions SET ` + strings.Join(set.cols, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	res, err := conn(r.DB).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update payment instruction %s: %w", id, err)
	}
	return intdb.Applied(res)
}

// MarkPendingReceived flips the booking's other pending bank transfers to received.
// Deposits keep their own refund flow and are never swept.
func (r InstructionRepository) MarkPendingReceived(ctx context.Context, bookingID, exceptID, confirmedBy string, at time.Time) (int64, error) {
	res, err := conn(r.DB).ExecContext(ctx, `
		UPDATE payment_instructions
		SET status = ?, confirmed_at = ?, confirmed_by = ?, updated_at = ?
		WHERE booking_id = ? AND id <> ? AND method = ? AND status = ? AND type <> ?`,
		string(models.InstructionReceived), at.UTC(), confirmedBy, at.UTC(),
		bookingID, exceptID, string(models.MethodBankTransfer),
		string(models.InstructionPending), string(models.InstructionDeposit),
	)
	if err != nil {
		return 0, fmt.Errorf("mark pending instructions received: %w", err)
	}
	return res.RowsAffected()
}

func instructionSet(p models.InstructionPatch) *setClause {
	set := &setClause{}
	if p.Status != nil {
		set.add("status", string(*p.Status))
	}
	if p.LastSentAt != nil {
		set.add("last_sent_at", p.LastSentAt.UTC())
	}
	if p.ConfirmedAt != nil {
		set.add("confirmed_at", p.ConfirmedAt.UTC())
	}
	if p.ConfirmedBy != nil {
		set.add("confirmed_by", *p.ConfirmedBy)
	}
	if p.RefundedAmount != nil {
		set.add("refunded_amount", *p.RefundedAmount)
	}
	if p.RefundedAt != nil {
		set.add("refunded_at", p.RefundedAt.UTC())
	}
	if p.RefundRejectionReason != nil {
		set.add("refund_rejection_reason", *p.RefundRejectionReason)
	}
	if p.RefundRejectedAt != nil {
		set.add("refund_rejected_at", p.RefundRejectedAt.UTC())
	}
	if !set.empty() && !p.UpdatedAt.IsZero() {
		set.add("updated_at", p.UpdatedAt.UTC())
	}
	return set
}
