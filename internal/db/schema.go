package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vehicles (
		id VARCHAR(64) PRIMARY KEY,
		partner_id VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'available',
		current_booking_id VARCHAR(64) NULL,
		plate_number VARCHAR(32) NULL,
		car_info_plate VARCHAR(32) NULL,
		registration VARCHAR(64) NULL,
		weekly_rate DECIMAL(10,2) NOT NULL DEFAULT 0,
		daily_rate DECIMAL(10,2) NOT NULL DEFAULT 0,
		active_booking_started_at DATETIME(3) NULL,
		released_by VARCHAR(64) NULL,
		released_by_type VARCHAR(32) NULL,
		release_reason VARCHAR(255) NULL,
		released_at DATETIME(3) NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_vehicles_current_booking (current_booking_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id VARCHAR(64) PRIMARY KEY,
		driver_id VARCHAR(64) NOT NULL,
		partner_id VARCHAR(64) NOT NULL,
		vehicle_id VARCHAR(64) NULL,
		start_date DATETIME(3) NOT NULL,
		end_date DATETIME(3) NOT NULL,
		status VARCHAR(40) NOT NULL,
		total_amount DECIMAL(10,2) NOT NULL DEFAULT 0,
		weekly_rate DECIMAL(10,2) NOT NULL DEFAULT 0,
		payment_method VARCHAR(32) NULL,
		payment_status VARCHAR(32) NULL,
		partner_acceptance_deadline DATETIME(3) NULL,
		activated_at DATETIME(3) NULL,
		activated_by VARCHAR(64) NULL,
		activated_by_type VARCHAR(32) NULL,
		activation_trigger VARCHAR(64) NULL,
		requirements_bypassed TINYINT(1) NOT NULL DEFAULT 0,
		vehicle_released_at DATETIME(3) NULL,
		vehicle_released_by VARCHAR(64) NULL,
		vehicle_released_by_type VARCHAR(32) NULL,
		vehicle_release_reason VARCHAR(255) NULL,
		insurance_required TINYINT(1) NOT NULL DEFAULT 1,
		insurance_status VARCHAR(32) NULL,
		insurance_provided_by_partner TINYINT(1) NOT NULL DEFAULT 0,
		documents_required TINYINT(1) NOT NULL DEFAULT 1,
		completed_at DATETIME(3) NULL,
		cancelled_at DATETIME(3) NULL,
		cancellation_reason VARCHAR(255) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_bookings_vehicle (vehicle_id),
		KEY ix_bookings_partner (partner_id),
		KEY ix_bookings_driver (driver_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_documents (
		id VARCHAR(64) PRIMARY KEY,
		booking_id VARCHAR(64) NOT NULL,
		kind VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		KEY ix_booking_documents_booking (booking_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS payment_instructions (
		id VARCHAR(64) PRIMARY KEY,
		booking_id VARCHAR(64) NOT NULL,
		driver_id VARCHAR(64) NOT NULL,
		partner_id VARCHAR(64) NOT NULL,
		method VARCHAR(32) NOT NULL,
		frequency VARCHAR(16) NOT NULL,
		type VARCHAR(32) NOT NULL,
		amount DECIMAL(10,2) NOT NULL,
		status VARCHAR(40) NOT NULL,
		vehicle_registration VARCHAR(64) NOT NULL,
		reference VARCHAR(64) NOT NULL,
		bank_account_name VARCHAR(128) NULL,
		bank_sort_code VARCHAR(16) NULL,
		bank_account_number VARCHAR(32) NULL,
		bank_name VARCHAR(128) NULL,
		next_due_date DATETIME(3) NULL,
		last_sent_at DATETIME(3) NULL,
		confirmed_at DATETIME(3) NULL,
		confirmed_by VARCHAR(64) NULL,
		refunded_amount DECIMAL(10,2) NULL,
		refunded_at DATETIME(3) NULL,
		refund_rejection_reason VARCHAR(500) NULL,
		refund_rejected_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		weekly_booking_key VARCHAR(64) GENERATED ALWAYS AS (IF(type = 'weekly_rent', booking_id, NULL)) STORED,
		UNIQUE KEY uq_instructions_weekly (weekly_booking_key),
		KEY ix_instructions_booking (booking_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(64) PRIMARY KEY,
		instruction_id VARCHAR(64) NOT NULL,
		booking_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		user_type VARCHAR(32) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		category VARCHAR(40) NOT NULL,
		amount DECIMAL(10,2) NOT NULL,
		description VARCHAR(255) NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_transactions_instruction (instruction_id, kind, category)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_issues (
		id VARCHAR(64) PRIMARY KEY,
		booking_id VARCHAR(64) NOT NULL,
		type VARCHAR(32) NOT NULL,
		description TEXT NOT NULL,
		severity VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		reported_by VARCHAR(64) NOT NULL,
		reported_by_type VARCHAR(32) NOT NULL,
		images_json TEXT NULL,
		reported_at DATETIME(3) NOT NULL,
		resolution TEXT NULL,
		resolved_by VARCHAR(64) NULL,
		resolved_by_type VARCHAR(32) NULL,
		resolved_at DATETIME(3) NULL,
		KEY ix_booking_issues_booking (booking_id, reported_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_history (
		id VARCHAR(64) PRIMARY KEY,
		booking_id VARCHAR(64) NOT NULL,
		action VARCHAR(64) NOT NULL,
		performed_by VARCHAR(64) NOT NULL,
		performed_by_type VARCHAR(32) NOT NULL,
		details_json TEXT NULL,
		description VARCHAR(500) NOT NULL,
		created_at DATETIME(3) NOT NULL,
		KEY ix_booking_history_booking (booking_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(64) PRIMARY KEY,
		recipient_id VARCHAR(64) NOT NULL,
		recipient_type VARCHAR(32) NOT NULL,
		type VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		data_json TEXT NULL,
		priority VARCHAR(16) NOT NULL,
		is_read TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(3) NOT NULL,
		KEY ix_notifications_recipient (recipient_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id VARCHAR(64) PRIMARY KEY,
		kind VARCHAR(32) NOT NULL,
		booking_id VARCHAR(64) NOT NULL,
		payload_json MEDIUMTEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		attempt_count INT NOT NULL DEFAULT 0,
		next_attempt_at DATETIME(3) NOT NULL,
		lease_owner VARCHAR(64) NOT NULL DEFAULT '',
		lease_expires_at DATETIME(3) NULL,
		last_error VARCHAR(1000) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL,
		processed_at DATETIME(3) NULL,
		KEY ix_outbox_due (status, next_attempt_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS partner_bank_accounts (
		partner_id VARCHAR(64) PRIMARY KEY,
		account_name VARCHAR(128) NOT NULL,
		sort_code VARCHAR(16) NOT NULL,
		account_number VARCHAR(32) NOT NULL,
		bank_name VARCHAR(128) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS partner_staff (
		id VARCHAR(64) PRIMARY KEY,
		partner_id VARCHAR(64) NOT NULL,
		name VARCHAR(128) NOT NULL,
		financial_visibility TINYINT(1) NOT NULL DEFAULT 0,
		active TINYINT(1) NOT NULL DEFAULT 1,
		KEY ix_partner_staff_partner (partner_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the engine tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
