package repositories

import (
	"context"
	"testing"
	"time"

	"rentals/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOutboxLeaseSkipsRowsClaimedElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "booking_id", "payload_json", "attempt_count", "next_attempt_at", "last_error", "created_at"}).
			AddRow("ev-1", "history", "bk-1", `{"action":"vehicle_released"}`, 0, now, "", now).
			AddRow("ev-2", "notification", "bk-1", `{}`, 1, now, "timeout", now))
	mock.ExpectExec("UPDATE outbox_events").WithArgs("leased", "w-1", now.Add(time.Minute), "ev-1", "pending", now, "leased", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox_events").WithArgs("leased", "w-1", now.Add(time.Minute), "ev-2", "pending", now, "leased", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	got, err := OutboxRepository{DB: db}.Lease(context.Background(), "w-1", 10, now, time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ev-1" {
		t.Fatalf("expected only ev-1 leased, got %+v", got)
	}
	if got[0].Kind != models.OutboxHistory || got[0].LeaseOwner != "w-1" {
		t.Fatalf("lease metadata not set: %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxMarkRetryReleasesLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	next := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE outbox_events").WithArgs("pending", next, "boom", "ev-1", "leased", "w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := (OutboxRepository{DB: db}).MarkRetry(context.Background(), "ev-1", "w-1", next, "boom"); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
