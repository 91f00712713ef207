package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rentals/internal/domain/models"
)

// PartnerRepository reads partner-owned reference data: payee accounts and staff.
type PartnerRepository struct {
	DB *sql.DB
}

// BankDetails returns the partner's payee account; empty details when none is on file.
func (r PartnerRepository) BankDetails(ctx context.Context, partnerID string) (models.BankDetails, error) {
	var (
		b        models.BankDetails
		bankName sql.NullString
	)
	err := conn(r.DB).QueryRowContext(ctx, `
		SELECT account_name, sort_code, account_number, bank_name
		FROM partner_bank_accounts
		WHERE partner_id = ?
		LIMIT 1`, partnerID).Scan(&b.AccountName, &b.SortCode, &b.AccountNumber, &bankName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.BankDetails{}, nil
		}
		return models.BankDetails{}, fmt.Errorf("get bank details: %w", err)
	}
	b.BankName = bankName.String
	return b, nil
}

// FinanceStaff lists active staff of the partner with financial visibility.
func (r PartnerRepository) FinanceStaff(ctx context.Context, partnerID string) ([]models.StaffMember, error) {
	rows, err := conn(r.DB).QueryContext(ctx, `
		SELECT id, partner_id, name, financial_visibility
		FROM partner_staff
		WHERE partner_id = ? AND active = 1 AND financial_visibility = 1
		ORDER BY id ASC`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("list finance staff: %w", err)
	}
	defer rows.Close()

	out := []models.StaffMember{}
	for rows.Next() {
		var s models.StaffMember
		if err := rows.Scan(&s.ID, &s.PartnerID, &s.Name, &s.FinancialVisibility); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
