package repositories

import (
	"context"
	"testing"
	"time"

	"rentals/internal/domain/models"
	"rentals/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNotificationCreateIgnoresRedelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec("INSERT IGNORE INTO notifications").
		WithArgs("n-1", "ptn-1", "partner", "payment_sent", "Payment sent", "£300.00 sent", `{"booking_id":"bk-1"}`, "high", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT IGNORE INTO notifications").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	n := models.Notification{
		ID: "n-1", RecipientID: "ptn-1", RecipientType: "partner", Type: "payment_sent",
		Title: "Payment sent", Message: "£300.00 sent", Data: map[string]any{"booking_id": "bk-1"},
		Priority: models.Priority("high"), CreatedAt: at,
	}
	repo := NotificationRepository{DB: db}
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("redelivered create should be a no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationListByRecipient(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "recipient_id", "recipient_type", "type", "title", "message", "data_json", "priority", "is_read", "created_at"}).
		AddRow("n-1", "drv-1", "driver", "vehicle_released", "Vehicle released", "AB12 CDE released", `{"booking_id":"bk-1"}`, "normal", false, at)
	mock.ExpectQuery("FROM notifications").WithArgs("drv-1", 50).WillReturnRows(rows)

	list, err := NotificationRepository{DB: db}.ListByRecipient(context.Background(), "drv-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Data["booking_id"] != "bk-1" || list[0].Priority != "normal" {
		t.Fatalf("list = %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationListLogsCorruptData(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := utils.GetLogger()
	utils.SetLogger(zap.New(core))
	t.Cleanup(func() { utils.SetLogger(prev) })

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "recipient_id", "recipient_type", "type", "title", "message", "data_json", "priority", "is_read", "created_at"}).
		AddRow("n-1", "drv-1", "driver", "vehicle_released", "Vehicle released", "AB12 CDE released", `{"booking_id":`, "normal", false, at).
		AddRow("n-2", "drv-1", "driver", "payment_sent", "Payment sent", "£300.00 sent", `{"booking_id":"bk-2"}`, "high", false, at)
	mock.ExpectQuery("FROM notifications").WithArgs("drv-1", 50).WillReturnRows(rows)

	list, err := NotificationRepository{DB: db}.ListByRecipient(context.Background(), "drv-1", 0)
	if err != nil {
		t.Fatalf("corrupt data should not fail the list, got %v", err)
	}
	if len(list) != 2 || list[0].Data != nil || list[1].Data["booking_id"] != "bk-2" {
		t.Fatalf("list = %+v", list)
	}
	entries := logs.FilterMessage("corrupt json column").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["id"] != "n-1" || fields["table"] != "notifications" || fields["column"] != "data_json" {
		t.Fatalf("warn fields = %v", fields)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
