package models

import (
	"strings"
	"time"
)

type VehicleStatus string

const (
	VehicleAvailable           VehicleStatus = "available"
	VehicleBooked              VehicleStatus = "booked"
	VehicleMaintenanceRequired VehicleStatus = "maintenance_required"
)

// Vehicle holds the assignment-relevant columns of a fleet vehicle.
type Vehicle struct {
	ID               string        `json:"id"`
	PartnerID        string        `json:"partner_id"`
	Status           VehicleStatus `json:"status"`
	CurrentBookingID string        `json:"current_booking_id,omitempty"`

	PlateNumber  string `json:"plate_number,omitempty"`
	CarInfoPlate string `json:"car_info_plate,omitempty"`
	Registration string `json:"registration,omitempty"`

	WeeklyRate float64 `json:"weekly_rate"`
	DailyRate  float64 `json:"daily_rate"`

	ActiveBookingStartedAt *time.Time      `json:"active_booking_started_at,omitempty"`
	LastRelease            *VehicleRelease `json:"last_release,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// RegistrationString resolves plate -> car info plate -> registration -> UNKNOWN.
func (v Vehicle) RegistrationString() string {
	for _, candidate := range []string{v.PlateNumber, v.CarInfoPlate, v.Registration} {
		if s := strings.ToUpper(strings.TrimSpace(candidate)); s != "" {
			return s
		}
	}
	return UnknownRegistration
}
