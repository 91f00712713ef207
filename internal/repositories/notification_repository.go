package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	intdb "rentals/internal/db"
	"rentals/internal/domain/models"
)

type NotificationRepository struct {
	DB *sql.DB
}

// Create stores one notification; a redelivered id is ignored.
func (r NotificationRepository) Create(ctx context.Context, n models.Notification) error {
	data := []byte("{}")
	if len(n.Data) > 0 {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
		data = b
	}
	_, err := conn(r.DB).ExecContext(ctx, `
		INSERT IGNORE INTO notifications (
			id, recipient_id, recipient_type, type, title, message,
			data_json, priority, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.RecipientID, n.RecipientType, n.Type, n.Title, n.Message,
		string(data), string(n.Priority), n.CreatedAt.UTC(),
	)
	if err != nil && !intdb.IsDuplicateKey(err) {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := conn(r.DB).QueryContext(ctx, `
		SELECT id, recipient_id, recipient_type, type, title, message,
		       COALESCE(data_json, ''), priority, is_read, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n        models.Notification
			data     string
			priority string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.RecipientType, &n.Type, &n.Title, &n.Message,
			&data, &priority, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Priority = models.Priority(priority)
		decodeColumn(ctx, "notifications", "data_json", n.ID, data, &n.Data)
		out = append(out, n)
	}
	return out, rows.Err()
}
