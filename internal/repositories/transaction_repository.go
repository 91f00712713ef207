package repositories

import (
	"context"
	"database/sql"
	"fmt"

	intdb "rentals/internal/db"
	"rentals/internal/domain/models"
)

type TransactionRepository struct {
	DB *sql.DB
}

// HasRefundFor reports whether the deposit refund pair was already written for an instruction.
func (r TransactionRepository) HasRefundFor(ctx context.Context, instructionID string) (bool, error) {
	var n int
	err := conn(r.DB).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE instruction_id = ? AND category = ?`,
		instructionID, models.CategoryDepositRefund,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check refund transactions: %w", err)
	}
	return n > 0, nil
}

// CreateRefundPair writes the expense and income rows in one transaction.
// A duplicate pair means a concurrent refund already recorded it and is not an error.
func (r TransactionRepository) CreateRefundPair(ctx context.Context, expense, income models.Transaction) error {
	tx, err := conn(r.DB).BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range []models.Transaction{expense, income} {
		if err := insertTransaction(ctx, tx, t); err != nil {
			if intdb.IsDuplicateKey(err) {
				return nil
			}
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refund tx: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, ex intdb.Execer, t models.Transaction) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO transactions (
			id, instruction_id, booking_id, user_id, user_type,
			kind, category, amount, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.InstructionID, t.BookingID, t.UserID, t.UserType,
		string(t.Kind), t.Category, t.Amount, intdb.NullIfEmpty(t.Description), t.CreatedAt.UTC(),
	)
	if err != nil && !intdb.IsDuplicateKey(err) {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return err
}
