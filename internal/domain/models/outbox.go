package models

import (
	"encoding/json"
	"time"
)

type OutboxKind string

const (
	OutboxHistory          OutboxKind = "history"
	OutboxNotification     OutboxKind = "notification"
	OutboxBookingPromotion OutboxKind = "booking_promotion"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxLeased  OutboxStatus = "leased"
	OutboxDone    OutboxStatus = "done"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxEvent is a secondary effect waiting to be applied by the drain worker.
type OutboxEvent struct {
	ID             string          `json:"id"`
	Kind           OutboxKind      `json:"kind"`
	BookingID      string          `json:"booking_id"`
	Payload        json.RawMessage `json:"payload"`
	Status         OutboxStatus    `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LeaseOwner     string          `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// PromotionPayload is the saga step retried by the worker after markSent.
type PromotionPayload struct {
	BookingID     string    `json:"booking_id"`
	InstructionID string    `json:"instruction_id"`
	Deadline      time.Time `json:"deadline"`
}
