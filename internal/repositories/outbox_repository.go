package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	intdb "rentals/internal/db"
	"rentals/internal/domain/models"
)

type OutboxRepository struct {
	DB *sql.DB
}

func (r OutboxRepository) Enqueue(ctx context.Context, ev models.OutboxEvent) error {
	status := ev.Status
	if status == "" {
		status = models.OutboxPending
	}
	next := ev.NextAttemptAt
	if next.IsZero() {
		next = ev.CreatedAt
	}
	_, err := conn(r.DB).ExecContext(ctx, `
		INSERT INTO outbox_events (
			id, kind, booking_id, payload_json, status,
			attempt_count, next_attempt_at, created_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		ev.ID, string(ev.Kind), ev.BookingID, string(ev.Payload), string(status),
		next.UTC(), ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// Lease claims up to limit due events for owner until now+ttl. Expired leases are reclaimable.
func (r OutboxRepository) Lease(ctx context.Context, owner string, limit int, now time.Time, ttl time.Duration) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()
	leaseUntil := now.Add(ttl)

	tx, err := conn(r.DB).BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox lease: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, booking_id, payload_json, attempt_count, next_attempt_at, last_error, created_at
		FROM outbox_events
		WHERE (status = ? AND next_attempt_at <= ?)
		   OR (status = ? AND lease_expires_at <= ?)
		ORDER BY next_attempt_at ASC, id ASC
		LIMIT ?`,
		string(models.OutboxPending), now, string(models.OutboxLeased), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due outbox events: %w", err)
	}
	var candidates []models.OutboxEvent
	for rows.Next() {
		var (
			ev      models.OutboxEvent
			kind    string
			payload string
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.BookingID, &payload, &ev.AttemptCount,
			&ev.NextAttemptAt, &ev.LastError, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		ev.Kind = models.OutboxKind(kind)
		ev.Payload = []byte(payload)
		candidates = append(candidates, ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	leased := make([]models.OutboxEvent, 0, len(candidates))
	for _, ev := range candidates {
		res, err := tx.ExecContext(ctx, `
			UPDATE outbox_events
			SET status = ?, lease_owner = ?, lease_expires_at = ?
			WHERE id = ?
			  AND ((status = ? AND next_attempt_at <= ?) OR (status = ? AND lease_expires_at <= ?))`,
			string(models.OutboxLeased), owner, leaseUntil, ev.ID,
			string(models.OutboxPending), now, string(models.OutboxLeased), now,
		)
		if err != nil {
			return nil, fmt.Errorf("lease outbox event %s: %w", ev.ID, err)
		}
		ok, err := intdb.Applied(res)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ev.Status = models.OutboxLeased
		ev.LeaseOwner = owner
		lu := leaseUntil
		ev.LeaseExpiresAt = &lu
		leased = append(leased, ev)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox lease: %w", err)
	}
	return leased, nil
}

func (r OutboxRepository) MarkDone(ctx context.Context, id, owner string, at time.Time) error {
	_, err := conn(r.DB).ExecContext(ctx, `
		UPDATE outbox_events
		SET status = ?, processed_at = ?, lease_owner = '', lease_expires_at = NULL, last_error = ''
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(models.OutboxDone), at.UTC(), id, string(models.OutboxLeased), owner,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event done: %w", err)
	}
	return nil
}

// MarkRetry releases the lease and schedules the next attempt.
func (r OutboxRepository) MarkRetry(ctx context.Context, id, owner string, next time.Time, lastErr string) error {
	_, err := conn(r.DB).ExecContext(ctx, `
		UPDATE outbox_events
		SET status = ?, attempt_count = attempt_count + 1, next_attempt_at = ?,
		    lease_owner = '', lease_expires_at = NULL, last_error = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(models.OutboxPending), next.UTC(), truncate(lastErr, 1000),
		id, string(models.OutboxLeased), owner,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event retry: %w", err)
	}
	return nil
}

func (r OutboxRepository) MarkDead(ctx context.Context, id, owner string, at time.Time, lastErr string) error {
	_, err := conn(r.DB).ExecContext(ctx, `
		UPDATE outbox_events
		SET status = ?, attempt_count = attempt_count + 1, processed_at = ?,
		    lease_owner = '', lease_expires_at = NULL, last_error = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		string(models.OutboxDead), at.UTC(), truncate(lastErr, 1000),
		id, string(models.OutboxLeased), owner,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event dead: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
