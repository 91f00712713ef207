package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	intdb "rentals/internal/db"
	"rentals/internal/domain/models"
)

type HistoryRepository struct {
	DB *sql.DB
}

// Append writes an entry once; replaying the same id is a no-op.
func (r HistoryRepository) Append(ctx context.Context, h models.HistoryEntry) error {
	details := []byte("{}")
	if len(h.Details) > 0 {
		b, err := json.Marshal(h.Details)
		if err != nil {
			return fmt.Errorf("encode history details: %w", err)
		}
		details = b
	}
	_, err := conn(r.DB).ExecContext(ctx, `
		INSERT IGNORE INTO booking_history (
			id, booking_id, action, performed_by, performed_by_type,
			details_json, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.BookingID, h.Action, h.PerformedBy, h.PerformedByType,
		string(details), h.Description, h.CreatedAt.UTC(),
	)
	if err != nil && !intdb.IsDuplicateKey(err) {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListByBooking returns the audit trail oldest first.
func (r HistoryRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.HistoryEntry, error) {
	rows, err := conn(r.DB).QueryContext(ctx, `
		SELECT id, booking_id, action, performed_by, performed_by_type,
		       COALESCE(details_json, ''), description, created_at
		FROM booking_history
		WHERE booking_id = ?
		ORDER BY created_at ASC, id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []models.HistoryEntry{}
	for rows.Next() {
		var (
			h       models.HistoryEntry
			details string
		)
		if err := rows.Scan(&h.ID, &h.BookingID, &h.Action, &h.PerformedBy, &h.PerformedByType,
			&details, &h.Description, &h.CreatedAt); err != nil {
			return nil, err
		}
		decodeColumn(ctx, "booking_history", "details_json", h.ID, details, &h.Details)
		out = append(out, h)
	}
	return out, rows.Err()
}
